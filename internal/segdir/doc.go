// Package segdir implements the segment directory: one descriptor per segment
// holding its lifecycle state, row counts and per-column end-of-file offsets.
package segdir
