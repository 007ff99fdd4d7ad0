package aocs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/aocs/blobstore"
	"github.com/hupe1980/aocs/internal/auxstore"
	"github.com/hupe1980/aocs/internal/cache"
	"github.com/hupe1980/aocs/internal/catalog"
	"github.com/hupe1980/aocs/internal/compress"
	"github.com/hupe1980/aocs/internal/datum"
	"github.com/hupe1980/aocs/internal/engine"
	"github.com/hupe1980/aocs/internal/resource"
	"github.com/hupe1980/aocs/internal/segdir"
)

const (
	auxDirName     = "aux"
	catalogDirName = "catalog"
)

type (
	// Datum is one column value; a NULL has Null set.
	Datum = datum.Datum
	// Row holds one value per column of a projection.
	Row = datum.Row
	// RowID addresses a physical row. It is stable for the row's lifetime
	// and never reused.
	RowID = engine.RowID
	// Expr computes the value of an added column for an existing row.
	Expr = engine.Expr
	// Cast converts a value to an altered column's new type.
	Cast = engine.Cast
	// Constraint is a CHECK constraint evaluated on every written value.
	Constraint = engine.Constraint
	// ColumnStorage holds per-column storage overrides. Zero values inherit
	// the table defaults.
	ColumnStorage = catalog.ColumnStorage
	// Toggle is a per-column boolean override.
	Toggle = catalog.Toggle
)

const (
	ToggleInherit = catalog.Inherit
	ToggleOn      = catalog.On
	ToggleOff     = catalog.Off
)

// Datum constructors.
var (
	Null    = datum.NullDatum
	Bytes   = datum.Bytes
	Text    = datum.Text
	Int64   = datum.Int64
	Float64 = datum.Float64
)

// MaxSegments is the number of segments a table has.
const MaxSegments = 128

// ColumnDef describes a column.
type ColumnDef struct {
	Name string
	// Type is a free-form type name recorded in the catalog.
	Type    string
	NotNull bool
	Storage ColumnStorage
}

// NewColumnDef describes a column added by Table.AddColumns.
type NewColumnDef struct {
	ColumnDef
	// Default computes the value of every existing row. Nil stores NULL.
	Default     Expr
	Constraints []Constraint
}

// AlterColumnDef describes a column rewritten by Table.AlterColumns.
type AlterColumnDef struct {
	Name string
	// Type replaces the type name when set.
	Type string
	// Storage replaces the column's storage overrides when set.
	Storage     *ColumnStorage
	Cast        Cast
	Constraints []Constraint
}

// SegmentInfo describes one segment of a table.
type SegmentInfo struct {
	SegNo         int32
	State         string
	TupleCount    int64
	HiddenCount   int64
	VarblockCount int64
	ModCount      int64
}

// Table is an append-optimized column store table.
//
// Any number of transactions may run concurrently. Schema changes and
// segment reclaim wait for running transactions and block new ones.
type Table struct {
	dir     string
	opts    options
	logger  *Logger
	metrics MetricsCollector

	aux     *auxstore.Store
	catalog *catalog.Store
	eng     *engine.Engine
	rc      *resource.Controller
	cache   *cache.LRUBlockCache

	ddl     sync.RWMutex
	mu      sync.Mutex
	rel     *catalog.Relation
	cols    []engine.Column
	owners  map[int32]*Txn
	closed  bool
	nextTxn atomic.Uint64
}

// Create creates a table called name in dir with the given columns.
func Create(ctx context.Context, dir, name string, cols []ColumnDef, optFns ...Option) (*Table, error) {
	o := applyOptions(optFns)

	catCols := make([]catalog.Column, len(cols))
	for i, c := range cols {
		catCols[i] = catalog.Column{Name: c.Name, Type: c.Type, NotNull: c.NotNull, Storage: c.Storage}
	}
	rel, err := catalog.NewRelation(name, o.relfilenode, catCols)
	if err != nil {
		return nil, translateError(err)
	}
	if err := applyDefaults(&rel.Defaults, o); err != nil {
		return nil, err
	}

	if err := o.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("aocs: create %s: %w", dir, err)
	}
	cat := catalog.NewStore(catalogStore(dir, o))
	if _, err := cat.Load(ctx); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, dir)
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return nil, translateError(err)
	}

	aux, err := openAux(dir, o)
	if err != nil {
		return nil, err
	}
	view := aux.NewView()
	defer view.Close()
	if _, ok, err := view.Get(auxstore.CatalogKey()); err != nil || ok {
		_ = aux.Close()
		if err == nil {
			err = fmt.Errorf("%w: %s", ErrTableExists, dir)
		}
		return nil, err
	}

	t := newTable(dir, o, aux, cat)
	if err := t.commitCatalog(ctx, view, rel); err != nil {
		_ = aux.Close()
		return nil, translateError(err)
	}
	if err := t.load(rel); err != nil {
		_ = aux.Close()
		return nil, translateError(err)
	}
	t.logger.Info("table created", "dir", dir, "columns", len(cols))
	return t, nil
}

// Open opens the table in dir.
func Open(ctx context.Context, dir string, optFns ...Option) (*Table, error) {
	o := applyOptions(optFns)
	if _, err := o.fs.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, dir)
		}
		return nil, err
	}

	aux, err := openAux(dir, o)
	if err != nil {
		return nil, err
	}
	cat := catalog.NewStore(catalogStore(dir, o))
	t := newTable(dir, o, aux, cat)

	rel, err := t.recoverCatalog(ctx)
	if err == nil {
		err = t.load(rel)
	}
	if err != nil {
		_ = aux.Close()
		return nil, translateError(err)
	}
	t.logger.Info("table opened", "dir", dir, "version", rel.ID)
	return t, nil
}

func catalogStore(dir string, o options) blobstore.BlobStore {
	if o.catalogStore != nil {
		return o.catalogStore
	}
	return blobstore.NewLocalStoreFS(filepath.Join(dir, catalogDirName), o.fs)
}

func openAux(dir string, o options) (*auxstore.Store, error) {
	return auxstore.Open(filepath.Join(dir, auxDirName), auxstore.Options{FS: o.auxFS, Logger: o.logger.Logger})
}

func applyDefaults(d *catalog.StorageOptions, o options) error {
	if o.compression != "" {
		ct, err := compress.ParseType(o.compression)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		d.Compression = ct
		d.CompressLevel = o.compressLevel
	}
	if o.blockSize != 0 {
		d.BlockSize = o.blockSize
	}
	if o.checksums != nil {
		d.Checksum = *o.checksums
	}
	if err := d.Validate(); err != nil {
		return translateError(err)
	}
	return nil
}

func newTable(dir string, o options, aux *auxstore.Store, cat *catalog.Store) *Table {
	t := &Table{
		dir:     dir,
		opts:    o,
		logger:  o.logger,
		metrics: o.metrics,
		aux:     aux,
		catalog: cat,
		owners:  make(map[int32]*Txn),
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes:     o.memoryLimit,
			MaxBackgroundWorkers: o.backgroundWorkers,
			IOLimitBytesPerSec:   o.ioLimit,
		}),
	}
	if o.blockCacheSize > 0 {
		t.cache = cache.NewLRUBlockCache(o.blockCacheSize, t.rc)
	}
	return t
}

// load installs rel and builds the engine for it.
func (t *Table) load(rel *catalog.Relation) error {
	cols, err := engine.ColumnsFromRelation(rel)
	if err != nil {
		return err
	}
	t.logger = t.opts.logger.WithTable(rel.Name)

	engOpts := []engine.Option{
		engine.WithLogger(t.logger.Logger),
		engine.WithFileSystem(t.opts.fs),
		engine.WithMmap(t.opts.mmap),
		engine.WithResourceController(t.rc),
		engine.WithTargetStrategy(t.opts.targetStrategy),
	}
	if t.cache != nil {
		engOpts = append(engOpts, engine.WithBlockCache(t.cache))
	}
	t.eng = engine.New(t.dir, rel.RelFileNode, t.aux, engOpts...)
	t.rel = rel
	t.cols = cols
	return nil
}

// recoverCatalog loads the committed catalog version. The aux store records
// which manifest committed; CURRENT is repaired when it lags behind.
func (t *Table) recoverCatalog(ctx context.Context) (*catalog.Relation, error) {
	view := t.aux.NewView()
	defer view.Close()

	name, ok, err := view.Get(auxstore.CatalogKey())
	if err != nil {
		return nil, err
	}
	if !ok {
		return t.catalog.Load(ctx)
	}
	rel, err := t.catalog.LoadNamed(ctx, string(name))
	if err != nil {
		return nil, err
	}
	current, err := t.catalog.Load(ctx)
	if err != nil || current.ID != rel.ID {
		t.logger.Warn("catalog pointer behind committed version, republishing", "manifest", string(name))
		if err := t.catalog.Publish(ctx, string(name)); err != nil {
			return nil, err
		}
	}
	return rel, nil
}

// commitCatalog writes rel as the next catalog version and commits it
// together with the pending writes of view.
func (t *Table) commitCatalog(ctx context.Context, view *auxstore.View, rel *catalog.Relation) error {
	name, err := t.catalog.Write(ctx, rel)
	if err != nil {
		return err
	}
	view.Set(auxstore.CatalogKey(), []byte(name))
	if err := view.Commit(); err != nil {
		if derr := t.catalog.DeleteVersion(ctx, rel.ID); derr != nil {
			t.logger.Warn("delete uncommitted catalog version failed", "manifest", name, "error", derr)
		}
		return err
	}
	if err := t.catalog.Publish(ctx, name); err != nil {
		t.logger.Warn("publish catalog version failed, repaired on next open", "manifest", name, "error", err)
	}
	return nil
}

// Name returns the table name.
func (t *Table) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rel.Name
}

// Dir returns the table directory.
func (t *Table) Dir() string { return t.dir }

// Version returns the catalog version of the table's schema.
func (t *Table) Version() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rel.ID
}

// Columns returns the table's columns in attribute order.
func (t *Table) Columns() []ColumnDef {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ColumnDef, len(t.rel.Columns))
	for i, c := range t.rel.Columns {
		out[i] = ColumnDef{Name: c.Name, Type: c.Type, NotNull: c.NotNull, Storage: c.Storage}
	}
	return out
}

func (t *Table) columns() []engine.Column {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cols
}

// projection maps column names to column positions. No names selects every
// column.
func (t *Table) projection(names []string) ([]int, error) {
	if len(names) == 0 {
		return nil, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	proj := make([]int, len(names))
	for i, name := range names {
		c, ok := t.rel.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNoSuchColumn, name)
		}
		proj[i] = int(c.AttNum - 1)
	}
	return proj, nil
}

// Segments describes every segment that was ever used.
func (t *Table) Segments(ctx context.Context) ([]SegmentInfo, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	view := t.aux.NewView()
	defer view.Close()
	sc := t.eng.NewContext(ctx, view, t.columns(), engine.IgnoreVisibility)
	defer sc.Abort()

	segs, err := sc.Segments().List()
	if err != nil {
		return nil, translateError(err)
	}
	out := make([]SegmentInfo, 0, len(segs))
	for _, s := range segs {
		out = append(out, SegmentInfo{
			SegNo:         s.SegNo,
			State:         s.State.String(),
			TupleCount:    s.TupleCount,
			HiddenCount:   s.HiddenCount,
			VarblockCount: s.VarblockCount,
			ModCount:      s.ModCount,
		})
	}
	return out, nil
}

func (t *Table) checkOpen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	return nil
}

// exclusive runs fn with no transaction running.
func (t *Table) exclusive(fn func() error) error {
	t.ddl.Lock()
	defer t.ddl.Unlock()
	if err := t.checkOpen(); err != nil {
		return err
	}
	return fn()
}

// AddColumns adds columns to the table. Every existing row, hidden rows and
// holes included, gets the value of the column's Default.
func (t *Table) AddColumns(ctx context.Context, defs []NewColumnDef) error {
	if len(defs) == 0 {
		return nil
	}
	err := t.exclusive(func() error {
		rel := t.rel.Clone()
		newCols := make([]engine.NewColumn, len(defs))
		for i, d := range defs {
			c, err := rel.AddColumn(catalog.Column{Name: d.Name, Type: d.Type, NotNull: d.NotNull, Storage: d.Storage})
			if err != nil {
				return err
			}
			storage, err := catalog.DeriveStorageOptions(rel, c.AttNum)
			if err != nil {
				return err
			}
			newCols[i] = engine.NewColumn{
				Column:      engine.Column{AttNum: c.AttNum, Name: c.Name, NotNull: c.NotNull, FileNum: c.FileNum, Storage: storage},
				Default:     d.Default,
				Constraints: d.Constraints,
			}
		}

		removeNew := func() {
			for _, nc := range newCols {
				if err := t.eng.RemoveColumnFiles(nc.Column.FileNum); err != nil {
					t.logger.Warn("remove column files failed", "column", nc.Column.Name, "error", err)
				}
			}
		}
		cols, err := t.rewrite(ctx, rel, func(sc *engine.Context) error {
			return t.eng.AddColumns(sc, newCols)
		})
		if err != nil {
			removeNew()
			return err
		}
		t.install(rel, cols)
		return nil
	})
	t.logger.LogRewrite(ctx, "add_column", len(defs), err)
	return translateError(err)
}

// AlterColumns rewrites columns into new files, casting every physically
// present value. The old files are removed once the change commits.
func (t *Table) AlterColumns(ctx context.Context, defs []AlterColumnDef) error {
	if len(defs) == 0 {
		return nil
	}
	err := t.exclusive(func() error {
		rel := t.rel.Clone()
		alters := make([]engine.AlterColumn, len(defs))
		oldFiles := make([]int32, len(defs))
		seen := make(map[int32]bool, len(defs))
		for i, d := range defs {
			c, ok := rel.Lookup(d.Name)
			if !ok {
				return fmt.Errorf("%w: %q", ErrNoSuchColumn, d.Name)
			}
			if seen[c.AttNum] {
				return fmt.Errorf("%w: column %q altered twice", ErrInvalidArgument, c.Name)
			}
			seen[c.AttNum] = true
			oldFiles[i] = c.FileNum
			if d.Type != "" {
				c.Type = d.Type
			}
			if d.Storage != nil {
				c.Storage = *d.Storage
			}
			c.FileNum = catalog.RewriteFileNum(c.FileNum)
			if err := rel.SetColumn(c); err != nil {
				return err
			}
			storage, err := catalog.DeriveStorageOptions(rel, c.AttNum)
			if err != nil {
				return err
			}
			alters[i] = engine.AlterColumn{
				Index:       int(c.AttNum - 1),
				Column:      engine.Column{AttNum: c.AttNum, Name: c.Name, NotNull: c.NotNull, FileNum: c.FileNum, Storage: storage},
				Cast:        d.Cast,
				Constraints: d.Constraints,
			}
		}
		if err := rel.Validate(); err != nil {
			return err
		}

		cols, err := t.rewrite(ctx, rel, func(sc *engine.Context) error {
			_, err := t.eng.AlterColumns(sc, alters)
			return err
		})
		if err != nil {
			for _, a := range alters {
				if rerr := t.eng.RemoveColumnFiles(a.Column.FileNum); rerr != nil {
					t.logger.Warn("remove column files failed", "column", a.Column.Name, "error", rerr)
				}
			}
			return err
		}
		t.install(rel, cols)
		for _, filenum := range oldFiles {
			if err := t.eng.RemoveColumnFiles(filenum); err != nil {
				t.logger.Warn("remove replaced column files failed", "filenum", filenum, "error", err)
			}
		}
		return nil
	})
	t.logger.LogRewrite(ctx, "alter_column", len(defs), err)
	return translateError(err)
}

// rewrite runs a schema change as one statement and commits it together
// with rel. It returns the columns after the change.
func (t *Table) rewrite(ctx context.Context, rel *catalog.Relation, fn func(sc *engine.Context) error) ([]engine.Column, error) {
	view := t.aux.NewView()
	defer view.Close()
	sc := t.eng.NewContext(ctx, view, t.cols, engine.NewSnapshot(t.nextTxn.Add(1)))
	if err := fn(sc); err != nil {
		sc.Abort()
		return nil, err
	}
	if err := sc.Finish(); err != nil {
		return nil, err
	}
	if err := t.commitCatalog(ctx, view, rel); err != nil {
		return nil, err
	}
	return sc.Columns(), nil
}

func (t *Table) install(rel *catalog.Relation, cols []engine.Column) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rel = rel
	t.cols = cols
}

// ReclaimSegment truncates the files of a retired segment and returns it to
// the pool of segments inserts can use.
func (t *Table) ReclaimSegment(ctx context.Context, segno int32) error {
	err := t.exclusive(func() error {
		view := t.aux.NewView()
		defer view.Close()
		sc := t.eng.NewContext(ctx, view, t.cols, engine.IgnoreVisibility)
		if err := t.eng.ReclaimSegment(sc, segno); err != nil {
			sc.Abort()
			return err
		}
		if err := sc.Finish(); err != nil {
			return err
		}
		return view.Commit()
	})
	if err != nil {
		t.logger.Error("reclaim segment failed", "segno", segno, "error", err)
	} else {
		t.logger.Info("segment reclaimed", "segno", segno)
	}
	return translateError(err)
}

// claim makes tx the owner of segno.
func (t *Table) claim(tx *Txn, segno int32) error {
	if segno < 0 || segno >= MaxSegments {
		return fmt.Errorf("%w: segment %d", ErrInvalidArgument, segno)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if owner, ok := t.owners[segno]; ok && owner != tx {
		return fmt.Errorf("%w: segment %d", ErrSegmentBusy, segno)
	}
	t.owners[segno] = tx
	return nil
}

// claimFree makes tx the owner of the lowest segment no other transaction
// owns and that is not retired.
func (t *Table) claimFree(tx *Txn, segs []segdir.Segment) (int32, error) {
	retired := make(map[int32]bool)
	for _, s := range segs {
		if s.State == segdir.AwaitingDrop {
			retired[s.SegNo] = true
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for segno := int32(0); segno < MaxSegments; segno++ {
		if retired[segno] {
			continue
		}
		if owner, ok := t.owners[segno]; ok && owner != tx {
			continue
		}
		t.owners[segno] = tx
		return segno, nil
	}
	return 0, ErrNoFreeSegment
}

func (t *Table) release(tx *Txn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for segno, owner := range t.owners {
		if owner == tx {
			delete(t.owners, segno)
		}
	}
}

// Close closes the table. It waits for running transactions to finish.
func (t *Table) Close() error {
	t.ddl.Lock()
	defer t.ddl.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.aux.Close()
	t.logger.Info("table closed", "error", err)
	return err
}
