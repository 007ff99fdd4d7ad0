// Package resource implements the resource controller shared by a table's
// statements.
//
//   - Memory: write buffers of insert/rewrite descriptors and the block cache
//     reserve bytes; reservations fail fast with ErrMemoryLimitExceeded.
//   - Background slots: bound concurrent maintenance work (Table.Verify).
//   - IO: a token bucket that throttles column rewrites so they do not
//     starve foreground scans.
package resource
