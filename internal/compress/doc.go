// Package compress implements the pluggable block codecs used by varblocks.
//
// A codec only transforms bytes; framing, lengths and the "stored raw because
// it did not compress" decision belong to the varblock layer.
package compress
