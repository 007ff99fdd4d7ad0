// Package engine implements the column-oriented append-optimized access
// method.
//
// The engine orchestrates:
//   - Sequential scans that read all projected columns in lock-step
//   - Target-row location for block sampling, through the block directory
//     or by sequential accumulation
//   - Fetch by row id, guided by the block directory
//   - Ordered inserts with batched row number allocation
//   - Deletes through the visibility map
//   - Column rewrites for ADD COLUMN and ALTER COLUMN TYPE
//
// All state of one statement lives in a Context. Descriptors opened through
// a Context own their files and are released by Context.Finish or
// Context.Abort. The engine starts no goroutines and holds no locks; callers
// serialize inserts and deletes per segment.
package engine
