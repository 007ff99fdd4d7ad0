// Package varblock encodes and decodes varblocks, the atomic unit of column
// storage.
//
// A varblock is a small typed header followed by the (optionally compressed)
// content. Small content blocks hold up to MaxRowCount values encoded as a
// null bitmap plus length-prefixed values; large content blocks hold a single
// value that did not fit a regular block.
//
// Decoding is strict: any disagreement between the header and the bytes it
// describes is reported as a *FormatError, which matches ErrFormat.
package varblock
