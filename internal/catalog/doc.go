// Package catalog persists the schema of an append-optimized column table:
// its columns, their column file numbers and their storage options.
//
// A catalog version is an immutable binary manifest blob (MANIFEST-NNNNNN.bin)
// in a blobstore.BlobStore. The CURRENT blob names the latest version.
//
// Storage options resolve in two layers: table defaults and per-column
// overrides. DeriveStorageOptions computes the effective options for one
// column without touching shared state.
package catalog
