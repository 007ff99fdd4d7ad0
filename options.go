package aocs

import (
	"log/slog"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/hupe1980/aocs/blobstore"
	"github.com/hupe1980/aocs/internal/engine"
	"github.com/hupe1980/aocs/internal/fs"
)

// TargetStrategy selects how Scanner.Target locates a row.
type TargetStrategy = engine.TargetStrategy

const (
	// TargetAuto uses the block directory when it has entries.
	TargetAuto = engine.TargetAuto
	// TargetDirectory always uses the block directory.
	TargetDirectory = engine.TargetDirectory
	// TargetSequential accumulates block row counts from the column files.
	TargetSequential = engine.TargetSequential
)

// DefaultRelFileNode is the file name prefix of column files.
const DefaultRelFileNode = 16384

type options struct {
	logger            *Logger
	metrics           MetricsCollector
	fs                fs.FileSystem
	auxFS             vfs.FS
	catalogStore      blobstore.BlobStore
	relfilenode       uint32
	blockCacheSize    int64
	memoryLimit       int64
	ioLimit           int64
	backgroundWorkers int64
	mmap              bool
	targetStrategy    TargetStrategy
	uniqueChecks      bool

	// table defaults, used by Create
	compression   string
	compressLevel int
	blockSize     int
	checksums     *bool
}

// Option configures Create and Open.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := aocs.NewJSONLogger(slog.LevelInfo)
//	tbl, _ := aocs.Open(ctx, dir, aocs.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithFileSystem sets the file system column files live on.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithAuxFS sets the pebble file system of the aux tables, e.g. vfs.NewMem()
// for a table whose directories live only in memory.
func WithAuxFS(fsys vfs.FS) Option {
	return func(o *options) {
		o.auxFS = fsys
	}
}

// WithCatalogStore keeps the catalog manifests in store instead of the
// table directory, e.g. an S3 or MinIO bucket.
func WithCatalogStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.catalogStore = store
	}
}

// WithRelFileNode sets the file name prefix of column files.
func WithRelFileNode(relfilenode uint32) Option {
	return func(o *options) {
		o.relfilenode = relfilenode
	}
}

// WithBlockCacheSize enables a cache of decoded blocks of the given size in
// bytes. Zero disables the cache.
func WithBlockCacheSize(bytes int64) Option {
	return func(o *options) {
		o.blockCacheSize = bytes
	}
}

// WithMemoryLimit bounds the memory of write buffers and cached blocks.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithIOLimit throttles column file IO to bytes per second.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithBackgroundWorkers bounds the parallelism of Verify.
func WithBackgroundWorkers(n int64) Option {
	return func(o *options) {
		o.backgroundWorkers = n
	}
}

// WithMmapReads reads column files through memory maps.
func WithMmapReads(enabled bool) Option {
	return func(o *options) {
		o.mmap = enabled
	}
}

// WithTargetStrategy sets how Scanner.Target locates rows.
func WithTargetStrategy(s TargetStrategy) Option {
	return func(o *options) {
		o.targetStrategy = s
	}
}

// WithUniqueChecks makes inserts install block directory placeholders so
// that Txn.RowExists sees rows before their block is flushed.
func WithUniqueChecks(enabled bool) Option {
	return func(o *options) {
		o.uniqueChecks = enabled
	}
}

// WithCompression sets the table default compression ("none", "lz4",
// "zstd" or "s2") and level. Only used by Create.
func WithCompression(name string, level int) Option {
	return func(o *options) {
		o.compression = name
		o.compressLevel = level
	}
}

// WithBlockSize sets the table default varblock size. Only used by Create.
func WithBlockSize(bytes int) Option {
	return func(o *options) {
		o.blockSize = bytes
	}
}

// WithChecksums sets whether blocks carry header and content checksums by
// default. Only used by Create.
func WithChecksums(enabled bool) Option {
	return func(o *options) {
		o.checksums = &enabled
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:      NoopLogger(),
		metrics:     NoopMetricsCollector{},
		fs:          fs.Default,
		relfilenode: DefaultRelFileNode,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
