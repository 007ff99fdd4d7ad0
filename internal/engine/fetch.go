package engine

import (
	"fmt"

	"github.com/hupe1980/aocs/internal/blockdir"
	"github.com/hupe1980/aocs/internal/datum"
	"github.com/hupe1980/aocs/internal/datumstream"
	"github.com/hupe1980/aocs/internal/segdir"
)

// fetchColumn is the per-column position of a Fetcher.
type fetchColumn struct {
	col    Column
	r      *datumstream.Reader
	first  int64 // first row number of the current block
	entry  blockdir.Entry
	cached bool
}

func (fc *fetchColumn) inBlock(rowNum int64) bool {
	return fc.r.HasBlock() && rowNum >= fc.first && rowNum < fc.first+int64(fc.r.Block().RowCount)
}

// Fetcher reads single rows by id through the block directory. Consecutive
// fetches in the same block or directory entry avoid repeated lookups.
type Fetcher struct {
	sc       *Context
	proj     []int
	cols     []*fetchColumn
	snapshot Snapshot

	seg     segdir.Segment
	segOpen bool
	lastSeq int64

	row    datum.Row
	closed bool
}

// BeginFetch prepares a fetch descriptor for the projected columns.
func (e *Engine) BeginFetch(sc *Context, proj []int, snap Snapshot) (*Fetcher, error) {
	proj, err := sc.projection(proj)
	if err != nil {
		return nil, err
	}
	f := &Fetcher{
		sc:       sc,
		proj:     proj,
		cols:     make([]*fetchColumn, len(proj)),
		snapshot: snap,
		row:      make(datum.Row, len(proj)),
	}
	for i, c := range proj {
		f.cols[i] = &fetchColumn{col: sc.columns[c]}
	}
	return f, nil
}

// Fetch returns the projected values of row id. Rows that were never
// written, fall into a hole or are hidden under the snapshot are reported
// as not found. The returned row is reused by the next call.
func (f *Fetcher) Fetch(id RowID) (datum.Row, bool, error) {
	if f.closed {
		return nil, false, ErrClosed
	}
	if !f.segOpen || f.seg.SegNo != id.SegNo {
		if err := f.openSegment(id.SegNo); err != nil {
			return nil, false, err
		}
	}
	if id.RowNum <= 0 || id.RowNum > f.lastSeq {
		return nil, false, nil
	}
	visible, err := f.sc.visimap.IsVisible(id.SegNo, id.RowNum, f.snapshot)
	if err != nil || !visible {
		return nil, false, err
	}

	for i, fc := range f.cols {
		found, err := f.locate(fc, id.RowNum)
		if err != nil {
			return nil, false, err
		}
		if !found {
			if i == 0 {
				return nil, false, nil
			}
			return nil, false, inconsistent(id.SegNo, fc.col, fc.r.Path(), 0,
				"row %d found in column %q but not in the block directory", id.RowNum, f.cols[0].col.Name)
		}
		f.row[i] = fc.r.Value()
	}
	return f.row, true, nil
}

func (f *Fetcher) openSegment(segno int32) error {
	if err := f.closeReaders(); err != nil {
		return err
	}
	seg, ok, err := f.sc.segments.Get(segno)
	if err != nil {
		return err
	}
	if !ok || seg.State == segdir.AwaitingDrop {
		return fmt.Errorf("%w: segment %d", ErrOutOfScanScope, segno)
	}
	last, err := f.sc.eng.aux.LastSequence(segno)
	if err != nil {
		return err
	}
	for i, fc := range f.cols {
		eof := seg.Column(f.proj[i]).EOF
		r, err := f.sc.eng.openReader(f.sc.ctx, fc.col, segno, eof)
		if err != nil {
			_ = f.closeReaders()
			return corruption(segno, fc.col, f.sc.eng.path(fc.col.FileNum, segno), 0, err)
		}
		fc.r = r
		fc.cached = false
	}
	f.seg, f.segOpen, f.lastSeq = seg, true, last
	return nil
}

// locate positions fc on rowNum: the current block first, then the cached
// directory entry, then a fresh directory lookup.
func (f *Fetcher) locate(fc *fetchColumn, rowNum int64) (bool, error) {
	if fc.inBlock(rowNum) {
		return true, fc.r.SetNth(int(rowNum - fc.first))
	}
	if !fc.cached || !fc.entry.Contains(rowNum) {
		e, ok, err := f.sc.blocks.FindEntry(f.seg.SegNo, fc.col.FileNum, rowNum)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		fc.entry, fc.cached = e, true
	}
	return f.scanEntry(fc, rowNum)
}

// scanEntry reads the block headers inside the cached entry until the block
// holding rowNum is found.
func (f *Fetcher) scanEntry(fc *fetchColumn, rowNum int64) (bool, error) {
	segno := f.seg.SegNo
	e := fc.entry
	if err := fc.r.SkipToBlockAt(e.FileOffset); err != nil {
		return false, inconsistent(segno, fc.col, fc.r.Path(), e.FileOffset, "block directory entry past eof: %v", err)
	}
	next := e.FirstRowNum
	for fc.r.NextOffset() < e.AfterFileOffset {
		ok, err := fc.r.ReadBlockHeader()
		if err != nil {
			return false, corruption(segno, fc.col, fc.r.Path(), fc.r.NextOffset(), err)
		}
		if !ok {
			break
		}
		b := fc.r.Block()
		first := next
		if b.HasFirstRowNum {
			first = b.FirstRowNum
		}
		next = first + int64(b.RowCount)
		if rowNum >= first && rowNum < next {
			fc.first = first
			if err := fc.r.SetNth(int(rowNum - first)); err != nil {
				return false, corruption(segno, fc.col, fc.r.Path(), b.FileOffset, err)
			}
			return true, nil
		}
	}
	return false, inconsistent(segno, fc.col, fc.r.Path(), e.FileOffset,
		"row %d not inside its block directory entry [%d, %d]", rowNum, e.FirstRowNum, e.LastRowNum())
}

func (f *Fetcher) closeReaders() error {
	var first error
	for _, fc := range f.cols {
		if fc.r == nil {
			continue
		}
		if err := fc.r.Close(); err != nil && first == nil {
			first = err
		}
		fc.r = nil
	}
	f.segOpen = false
	return first
}

// Close releases the column files. It is idempotent.
func (f *Fetcher) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.closeReaders()
}
