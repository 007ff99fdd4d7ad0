// Package s3 provides an S3 implementation of the blobstore.BlobStore
// interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("tables/orders/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	tbl, err := aocs.Open(ctx, dir, aocs.WithCatalogStore(store))
//
// Plain S3 has no compare-and-swap, so two writers committing a catalog at
// the same time can lose an update. DDBCommitStore closes that gap by keeping
// the CURRENT pointer in DynamoDB with conditional writes.
package s3
