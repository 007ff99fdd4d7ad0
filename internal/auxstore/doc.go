// Package auxstore persists the auxiliary tables of a column table: segment
// descriptors, block directory entries, visibility map entries and fast
// sequence counters. All of them live in one pebble database.
//
// Readers and writers go through a View, a pebble snapshot overlaid with the
// view's own uncommitted writes. Commit applies the overlay atomically;
// discarding it is an abort. Sequence allocation is the exception: it is
// written through immediately so that numbers are never handed out twice.
package auxstore
