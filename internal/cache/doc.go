// Package cache caches decoded varblock contents keyed by column file and
// block offset, so repeated fetches into the same block skip the read,
// checksum and decompression steps.
package cache
