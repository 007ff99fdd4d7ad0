// Package datumstream reads and writes the sequence of varblocks stored in
// one column segment file.
//
// The Writer accumulates values until Put reports ErrBlockFull; the caller
// then flushes the block, records a block directory entry for the returned
// BlockInfo, and retries. A value that does not fit an empty block is written
// with WriteLarge as a dedicated large content block.
//
// The Reader walks blocks up to the logical EOF taken from the segment
// directory. Advance steps value by value and loads blocks transparently;
// ReadBlockHeader and SkipToBlockAt let callers skip whole blocks or jump to
// an offset found in the block directory.
package datumstream
