package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hupe1980/aocs/internal/auxstore"
	"github.com/hupe1980/aocs/internal/blockdir"
	"github.com/hupe1980/aocs/internal/segdir"
	"github.com/hupe1980/aocs/internal/visimap"
)

// Context is the state of one statement: the directories it reads through,
// its snapshot and the descriptors it opened. Every descriptor is owned by
// exactly one Context and released by Finish or Abort.
type Context struct {
	ctx      context.Context
	eng      *Engine
	view     *auxstore.View
	columns  []Column
	snapshot Snapshot
	logger   *slog.Logger

	segments *segdir.Directory
	blocks   *blockdir.Directory
	visimap  *visimap.Map

	inserts  map[int32]*Inserter
	deleter  *Deleter
	fetchers []*Fetcher
	scans    []*Scan
	done     bool
}

// NewContext starts a statement over view. The directories are read once
// through the view; the statement's own writes are staged in it.
func (e *Engine) NewContext(ctx context.Context, view *auxstore.View, columns []Column, snap Snapshot) *Context {
	return &Context{
		ctx:      ctx,
		eng:      e,
		view:     view,
		columns:  append([]Column(nil), columns...),
		snapshot: snap,
		logger:   e.logger,
		segments: segdir.New(view),
		blocks:   blockdir.New(view),
		visimap:  visimap.New(view),
		inserts:  make(map[int32]*Inserter),
	}
}

// Columns returns the relation's columns as the statement sees them.
func (c *Context) Columns() []Column { return c.columns }

// SetColumns replaces the columns after a schema change in this statement.
func (c *Context) SetColumns(cols []Column) {
	c.columns = append([]Column(nil), cols...)
}

// Snapshot returns the statement snapshot.
func (c *Context) Snapshot() Snapshot { return c.snapshot }

// Segments returns the statement's segment directory.
func (c *Context) Segments() *segdir.Directory { return c.segments }

// Blocks returns the statement's block directory.
func (c *Context) Blocks() *blockdir.Directory { return c.blocks }

// Visimap returns the statement's visibility map.
func (c *Context) Visimap() *visimap.Map { return c.visimap }

func (c *Context) column(i int) (Column, error) {
	if i < 0 || i >= len(c.columns) {
		return Column{}, fmt.Errorf("%w: column %d of %d", ErrInvalidArgument, i, len(c.columns))
	}
	return c.columns[i], nil
}

func (c *Context) projection(proj []int) ([]int, error) {
	if len(proj) == 0 {
		if len(c.columns) == 0 {
			return nil, fmt.Errorf("%w: relation has no columns", ErrInvalidArgument)
		}
		out := make([]int, len(c.columns))
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	for _, i := range proj {
		if _, err := c.column(i); err != nil {
			return nil, err
		}
	}
	return append([]int(nil), proj...), nil
}

// Inserter returns the statement's insert descriptor for segno, beginning
// one on first use.
func (c *Context) Inserter(segno int32, opts InsertOptions) (*Inserter, error) {
	if c.done {
		return nil, ErrClosed
	}
	if ins, ok := c.inserts[segno]; ok {
		return ins, nil
	}
	ins, err := c.eng.BeginInsert(c, segno, opts)
	if err != nil {
		return nil, err
	}
	c.inserts[segno] = ins
	return ins, nil
}

// Deleter returns the statement's delete descriptor.
func (c *Context) Deleter() (*Deleter, error) {
	if c.done {
		return nil, ErrClosed
	}
	if c.deleter == nil {
		c.deleter = c.eng.BeginDelete(c)
	}
	return c.deleter, nil
}

// Fetcher begins a fetch descriptor owned by the statement.
func (c *Context) Fetcher(proj []int, snap Snapshot) (*Fetcher, error) {
	if c.done {
		return nil, ErrClosed
	}
	f, err := c.eng.BeginFetch(c, proj, snap)
	if err != nil {
		return nil, err
	}
	c.fetchers = append(c.fetchers, f)
	return f, nil
}

// Scan begins a scan owned by the statement.
func (c *Context) Scan(opts ScanOptions) (*Scan, error) {
	if c.done {
		return nil, ErrClosed
	}
	s, err := c.eng.BeginScan(c, opts)
	if err != nil {
		return nil, err
	}
	c.scans = append(c.scans, s)
	return s, nil
}

// Finish ends the statement: open inserts are finished, pending deletes are
// flushed and readers are closed. The statement's writes stay staged in the
// view until the transaction commits.
func (c *Context) Finish() error {
	if c.done {
		return nil
	}
	c.done = true

	var errs []error
	for _, ins := range c.inserts {
		if err := ins.Finish(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.deleter != nil {
		if err := c.deleter.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, c.closeReaders())
	if err := errors.Join(errs...); err != nil {
		c.abortInserts()
		return err
	}
	return nil
}

// Abort ends the statement without flushing anything. The caller discards
// the view.
func (c *Context) Abort() {
	if c.done {
		return
	}
	c.done = true
	c.abortInserts()
	_ = c.closeReaders()
}

func (c *Context) abortInserts() {
	for _, ins := range c.inserts {
		ins.Abort()
	}
}

func (c *Context) closeReaders() error {
	var errs []error
	for _, f := range c.fetchers {
		errs = append(errs, f.Close())
	}
	for _, s := range c.scans {
		errs = append(errs, s.Close())
	}
	c.fetchers = nil
	c.scans = nil
	return errors.Join(errs...)
}
