package aocs

import (
	"context"

	"github.com/hupe1980/aocs/blobstore"
	"github.com/hupe1980/aocs/internal/fs"
)

// =============================================================================
// Table Builder (Immutable)
// =============================================================================

// NewTable creates a builder for a table called name in dir.
//
// The builder is immutable - each method returns a new builder with the updated configuration.
// A builder can therefore be shared as a template for several tables.
//
// Example:
//
//	tbl, err := aocs.NewTable("./orders", "orders").
//	    Column("id", "int8", aocs.NotNull()).
//	    Column("note", "text", aocs.Compress("zstd", 3)).
//	    Compression("lz4", 0).
//	    BlockSize(64 * 1024).
//	    Create(ctx)
func NewTable(dir, name string) TableBuilder {
	return TableBuilder{dir: dir, name: name}
}

// TableBuilder is an immutable fluent builder for Create.
type TableBuilder struct {
	dir     string
	name    string
	columns []ColumnDef
	opts    []Option
}

// ColumnOption configures one column of a TableBuilder.
type ColumnOption func(*ColumnDef)

// NotNull rejects NULL values in the column.
func NotNull() ColumnOption {
	return func(c *ColumnDef) {
		c.NotNull = true
	}
}

// Compress overrides the table compression for the column.
func Compress(name string, level int) ColumnOption {
	return func(c *ColumnDef) {
		c.Storage.Compression = name
		c.Storage.CompressLevel = level
	}
}

// ColumnBlockSize overrides the table block size for the column.
func ColumnBlockSize(bytes int) ColumnOption {
	return func(c *ColumnDef) {
		c.Storage.BlockSize = bytes
	}
}

// ColumnChecksums overrides the table checksum setting for the column.
func ColumnChecksums(enabled bool) ColumnOption {
	return func(c *ColumnDef) {
		if enabled {
			c.Storage.Checksum = ToggleOn
		} else {
			c.Storage.Checksum = ToggleOff
		}
	}
}

func (b TableBuilder) with(opt Option) TableBuilder {
	b.opts = append(append([]Option(nil), b.opts...), opt)
	return b
}

// Column appends a column.
func (b TableBuilder) Column(name, typ string, opts ...ColumnOption) TableBuilder {
	c := ColumnDef{Name: name, Type: typ}
	for _, fn := range opts {
		fn(&c)
	}
	b.columns = append(append([]ColumnDef(nil), b.columns...), c)
	return b
}

// Compression sets the table default compression.
func (b TableBuilder) Compression(name string, level int) TableBuilder {
	return b.with(WithCompression(name, level))
}

// BlockSize sets the table default block size.
func (b TableBuilder) BlockSize(bytes int) TableBuilder {
	return b.with(WithBlockSize(bytes))
}

// Checksums sets whether blocks carry checksums by default.
func (b TableBuilder) Checksums(enabled bool) TableBuilder {
	return b.with(WithChecksums(enabled))
}

// RelFileNode sets the file name prefix of column files.
func (b TableBuilder) RelFileNode(relfilenode uint32) TableBuilder {
	return b.with(WithRelFileNode(relfilenode))
}

// Logger sets the logger.
func (b TableBuilder) Logger(l *Logger) TableBuilder {
	return b.with(WithLogger(l))
}

// Metrics sets the metrics collector.
func (b TableBuilder) Metrics(mc MetricsCollector) TableBuilder {
	return b.with(WithMetricsCollector(mc))
}

// FileSystem sets the file system of the column files.
func (b TableBuilder) FileSystem(fsys fs.FileSystem) TableBuilder {
	return b.with(WithFileSystem(fsys))
}

// CatalogStore keeps catalog manifests in store.
func (b TableBuilder) CatalogStore(store blobstore.BlobStore) TableBuilder {
	return b.with(WithCatalogStore(store))
}

// Options appends arbitrary options.
func (b TableBuilder) Options(opts ...Option) TableBuilder {
	for _, o := range opts {
		b = b.with(o)
	}
	return b
}

// Create creates the table.
func (b TableBuilder) Create(ctx context.Context) (*Table, error) {
	return Create(ctx, b.dir, b.name, b.columns, b.opts...)
}

// MustCreate is like Create but panics on error.
func (b TableBuilder) MustCreate(ctx context.Context) *Table {
	t, err := b.Create(ctx)
	if err != nil {
		panic(err)
	}
	return t
}
