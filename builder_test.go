package aocs_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aocs"
	"github.com/hupe1980/aocs/blobstore"
)

func TestBuilder_Basic(t *testing.T) {
	ctx := context.Background()
	tbl, err := aocs.NewTable(filepath.Join(t.TempDir(), "t"), "events").
		Column("id", "int8", aocs.NotNull()).
		Column("payload", "bytea", aocs.Compress("zstd", 3), aocs.ColumnBlockSize(64*1024), aocs.ColumnChecksums(false)).
		Compression("lz4", 0).
		BlockSize(16 * 1024).
		Checksums(true).
		Create(ctx)
	require.NoError(t, err)
	defer tbl.Close()

	cols := tbl.Columns()
	require.Len(t, cols, 2)
	assert.True(t, cols[0].NotNull)
	assert.Equal(t, aocs.ColumnStorage{Compression: "zstd", CompressLevel: 3, BlockSize: 64 * 1024, Checksum: aocs.ToggleOff}, cols[1].Storage)

	insertCommitted(t, tbl, 1, 3)
	assert.Len(t, scanAll(t, tbl), 3)
}

func TestBuilder_IsImmutable(t *testing.T) {
	ctx := context.Background()
	base := aocs.NewTable(filepath.Join(t.TempDir(), "a"), "a").Column("id", "int8")
	_ = base.Column("extra", "text").Compression("zstd", 1)

	a, err := base.Create(ctx)
	require.NoError(t, err)
	defer a.Close()
	assert.Len(t, a.Columns(), 1)

	dir := filepath.Join(t.TempDir(), "b")
	b, err := aocs.NewTable(dir, "b").
		Column("id", "int8").
		Column("extra", "text").
		RelFileNode(20000).
		CatalogStore(blobstore.NewMemoryStore()).
		Metrics(&aocs.BasicMetricsCollector{}).
		Logger(aocs.NoopLogger()).
		Create(ctx)
	require.NoError(t, err)
	defer b.Close()
	assert.Len(t, b.Columns(), 2)
	insertCommitted(t, b, 1, 1)
	assert.FileExists(t, filepath.Join(dir, "20000.0"))
}

func TestBuilder_MustCreate_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustCreate should panic on invalid configuration")
		}
	}()
	aocs.NewTable(t.TempDir(), "").Column("id", "int8").MustCreate(context.Background())
}
