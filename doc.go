// Package aocs provides an embedded append-optimized, column-oriented table store for Go.
//
// Every column of a table is an independent stream of varblocks spread over
// per-segment files. A block directory maps row-number ranges to byte ranges
// so single rows can be fetched without scanning, and a visibility map marks
// deleted rows. Rows are never updated in place.
//
// # Quick Start
//
//	ctx := context.Background()
//	tbl, _ := aocs.Create(ctx, "./orders", "orders", []aocs.ColumnDef{
//	    {Name: "id", Type: "int8", NotNull: true},
//	    {Name: "note", Type: "text"},
//	}, aocs.WithCompression("zstd", 3))
//	defer tbl.Close()
//
//	tbl, _ := aocs.Open(ctx, "./orders")  // re-open existing
//
// # Transactions
//
// All reads and writes run in a transaction. Each call is one statement that
// sees what was committed before it started plus the transaction's own
// earlier statements:
//
//	tx, _ := tbl.Begin(ctx)
//	ids, _ := tx.Insert(ctx,
//	    aocs.Row{aocs.Int64(1), aocs.Text("first")},
//	    aocs.Row{aocs.Int64(2), aocs.Null()},
//	)
//	_ = tx.Delete(ctx, ids[1])
//	row, found, _ := tx.Fetch(ctx, ids[0], "note")
//	_ = tx.Commit(ctx)
//
// A transaction inserts into a segment no other running transaction writes
// to; up to 128 transactions can insert concurrently.
//
// # Scans
//
//	s, _ := tx.Scan(ctx, aocs.WithScanColumns("id"))
//	defer s.Close()
//	for id, row := range s.All() {
//	    fmt.Println(id, row[0].Int64())
//	}
//	if err := s.Err(); err != nil { ... }
//
// # Schema Changes
//
// AddColumns replays a default expression for every existing row, including
// rows that are deleted. AlterColumns rewrites columns into new files and
// casts every value; the old files are removed once the change commits.
//
//	err := tbl.AddColumns(ctx, []aocs.NewColumnDef{{
//	    ColumnDef: aocs.ColumnDef{Name: "qty", Type: "int8"},
//	    Default:   func(aocs.RowID) (aocs.Datum, error) { return aocs.Int64(0), nil },
//	}})
//
// # Storage
//
// Catalog manifests live in a blobstore.BlobStore (the table directory by
// default; S3 and MinIO stores ship in blobstore/s3 and blobstore/minio). The
// segment directory, block directory and visibility map live in a pebble
// database under the table directory.
package aocs
