// Package hash provides the checksums used by the on-disk formats.
//
// Every checksummed varblock carries two CRC32-Castagnoli values: one over
// the header bytes and one over the stored (possibly compressed) content.
// Catalog manifests carry a CRC32C over their payload.
//
//	checksum := hash.CRC32C(data)
//
// Go's crc32 package uses SSE4.2 / ARM CRC instructions when available.
package hash
