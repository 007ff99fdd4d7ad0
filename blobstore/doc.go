// Package blobstore provides the storage abstraction for a table's catalog
// manifests.
//
// Column segment files always live on a local file system; the catalog that
// describes them can be kept elsewhere.
//
// # Built-in Implementations
//
//   - MemoryStore: in memory, for tests
//   - LocalStore: local file system with atomic renames and mmap reads
//   - minio.Store: MinIO and other S3-compatible storage
//   - s3.Store: Amazon S3, optionally with s3.DDBCommitStore for atomic
//     CURRENT pointer updates through DynamoDB
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
