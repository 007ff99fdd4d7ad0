package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hupe1980/aocs/internal/auxstore"
	"github.com/hupe1980/aocs/internal/cache"
	"github.com/hupe1980/aocs/internal/datumstream"
	"github.com/hupe1980/aocs/internal/fs"
	"github.com/hupe1980/aocs/internal/resource"
	"github.com/hupe1980/aocs/internal/varblock"
)

// AccessMethod is the storage interface a table is opened with. Engine is
// the column-oriented implementation.
type AccessMethod interface {
	Name() string
	BeginScan(sc *Context, opts ScanOptions) (*Scan, error)
	BeginFetch(sc *Context, proj []int, snap Snapshot) (*Fetcher, error)
	BeginInsert(sc *Context, segno int32, opts InsertOptions) (*Inserter, error)
	BeginDelete(sc *Context) *Deleter
	BeginHeaderScan(sc *Context, segno int32, col int) (*HeaderScan, error)
	RowExists(sc *Context, id RowID) (bool, error)
	AddColumns(sc *Context, cols []NewColumn) error
	AlterColumns(sc *Context, alters []AlterColumn) ([]Column, error)
	RetireSegment(sc *Context, segno int32) error
	ReclaimSegment(sc *Context, segno int32) error
	RemoveColumnFiles(filenum int32) error
}

var _ AccessMethod = (*Engine)(nil)

// TargetStrategy selects how GetTargetRow locates a row.
type TargetStrategy uint8

const (
	// TargetAuto uses the block directory when it has entries.
	TargetAuto TargetStrategy = iota
	// TargetDirectory always uses the block directory.
	TargetDirectory
	// TargetSequential accumulates block row counts from the column files.
	TargetSequential
)

// Engine is the column-oriented access method of one relation.
type Engine struct {
	dir         string
	relfilenode uint32
	aux         *auxstore.Store

	fs             fs.FileSystem
	blockCache     cache.BlockCache
	mmap           bool
	rc             *resource.Controller
	targetStrategy TargetStrategy
	logger         *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithFileSystem sets the file system column files live on.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(e *Engine) {
		e.fs = fsys
	}
}

// WithBlockCache sets the cache for decoded block contents.
func WithBlockCache(c cache.BlockCache) Option {
	return func(e *Engine) {
		e.blockCache = c
	}
}

// WithMmap reads column files through memory maps.
func WithMmap(enabled bool) Option {
	return func(e *Engine) {
		e.mmap = enabled
	}
}

// WithResourceController sets the resource controller for write buffers and IO.
func WithResourceController(rc *resource.Controller) Option {
	return func(e *Engine) {
		e.rc = rc
	}
}

// WithTargetStrategy sets the target-row location strategy.
func WithTargetStrategy(s TargetStrategy) Option {
	return func(e *Engine) {
		e.targetStrategy = s
	}
}

// New creates the engine for the relation stored as relfilenode in dir.
func New(dir string, relfilenode uint32, aux *auxstore.Store, opts ...Option) *Engine {
	e := &Engine{
		dir:         dir,
		relfilenode: relfilenode,
		aux:         aux,
		fs:          fs.Default,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e
}

// Name identifies the access method.
func (e *Engine) Name() string { return "aocs" }

// Aux returns the aux store.
func (e *Engine) Aux() *auxstore.Store { return e.aux }

func (e *Engine) path(filenum, segno int32) string {
	return datumstream.SegmentFileName(e.dir, e.relfilenode, filenum, segno)
}

func (e *Engine) readerOptions() datumstream.ReaderOptions {
	return datumstream.ReaderOptions{Cache: e.blockCache, Mmap: e.mmap, Resources: e.rc}
}

func (e *Engine) openReader(ctx context.Context, col Column, segno int32, eof int64) (*datumstream.Reader, error) {
	return datumstream.OpenReader(ctx, e.fs, e.path(col.FileNum, segno), eof, e.readerOptions())
}

// openWriter opens a column file for appending at eof. Cached blocks at or
// past eof belong to aborted or dropped data and are invalidated first.
func (e *Engine) openWriter(ctx context.Context, col Column, segno int32, eof, uncompressedEOF int64) (*datumstream.Writer, error) {
	codec, err := col.Storage.Codec()
	if err != nil {
		return nil, err
	}
	path := e.path(col.FileNum, segno)
	e.invalidateFrom(path, eof)
	return datumstream.OpenWriter(ctx, e.fs, path, eof, uncompressedEOF, datumstream.WriterOptions{
		BlockSize: col.Storage.BlockSize,
		Codec:     codec,
		Checksums: col.Storage.Checksum,
		Resources: e.rc,
	})
}

func (e *Engine) invalidateFrom(path string, offset int64) {
	if e.blockCache == nil {
		return
	}
	e.blockCache.Invalidate(func(k cache.Key) bool {
		return k.Path == path && k.Offset >= offset
	})
}

// RemoveColumnFiles deletes the files of column file number filenum in
// every segment. Missing files are skipped.
func (e *Engine) RemoveColumnFiles(filenum int32) error {
	var errs []error
	for segno := int32(0); segno < datumstream.MaxSegments; segno++ {
		path := e.path(filenum, segno)
		e.invalidateFrom(path, 0)
		if err := e.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// corruption wraps err in a CorruptionError when it reports bad data.
func corruption(segno int32, col Column, path string, offset int64, err error) error {
	if err == nil {
		return nil
	}
	var ce *CorruptionError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, varblock.ErrFormat) || errors.Is(err, datumstream.ErrEOFMismatch) {
		return &CorruptionError{SegNo: segno, Column: col.Name, Path: path, Offset: offset, Err: err}
	}
	return fmt.Errorf("engine: segment %d column %q: %w", segno, col.Name, err)
}

// inconsistent reports column files that disagree with each other or with
// the block directory.
func inconsistent(segno int32, col Column, path string, offset int64, format string, args ...any) error {
	return &CorruptionError{SegNo: segno, Column: col.Name, Path: path, Offset: offset, Err: fmt.Errorf(format, args...)}
}
