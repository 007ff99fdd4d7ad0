// Package visimap implements the visibility map: per segment, one compressed
// bitmap for every RowsPerEntry row numbers where a set bit marks a hidden
// (deleted) row.
//
// Bitmaps are held in memory as 64-bit words and stored as 32-bit blocks
// compressed with a 2-bit-per-block scheme (all zero, all one, raw, repeat).
// The 32/64-bit translation is explicit; see OnDiskBlockCount and
// InMemoryWordCount.
package visimap
