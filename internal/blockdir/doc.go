// Package blockdir implements the block directory, a secondary index from
// row number ranges to byte ranges of one column file in one segment.
//
// Entries are appended as blocks are flushed and never modified. Row ranges
// of one (segment, file number) pair are strictly increasing and may leave
// gaps: rows of aborted inserts. A lookup that lands in a gap, or below the
// first entry, reports "not found" rather than an error.
package blockdir
