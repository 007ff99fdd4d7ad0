package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/aocs/internal/segdir"
)

// RetireSegment moves segno to AwaitingDrop. Retired segments are never
// scanned, fetched from or inserted into until they are reclaimed.
func (e *Engine) RetireSegment(sc *Context, segno int32) error {
	seg, ok, err := sc.segments.Get(segno)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: segment %d", ErrOutOfScanScope, segno)
	}
	if seg.State == segdir.AwaitingDrop {
		return nil
	}
	if _, busy := sc.inserts[segno]; busy {
		return fmt.Errorf("%w: segment %d has an open insert", ErrInvalidArgument, segno)
	}
	seg.State = segdir.AwaitingDrop
	seg.ModCount++
	if err := sc.segments.Put(seg); err != nil {
		return err
	}
	e.logger.Info("segment retired", "segno", segno, "tuples", seg.TupleCount)
	return nil
}

// ReclaimSegment truncates the files of a retired segment, clears its block
// directory and visibility map entries and makes it available for inserts
// again. Row numbers keep increasing from where the segment left off.
func (e *Engine) ReclaimSegment(sc *Context, segno int32) error {
	seg, ok, err := sc.segments.Get(segno)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: segment %d", ErrOutOfScanScope, segno)
	}
	if seg.State != segdir.AwaitingDrop {
		return fmt.Errorf("%w: segment %d is %s, not awaiting drop", ErrInvalidArgument, segno, seg.State)
	}

	for _, col := range sc.columns {
		path := e.path(col.FileNum, segno)
		e.invalidateFrom(path, 0)
		if err := e.fs.Truncate(path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("engine: truncate %s: %w", path, err)
		}
	}
	sc.blocks.DeleteSegment(segno)
	sc.visimap.DeleteSegment(segno)

	reclaimed := seg.TupleCount
	seg = segdir.Segment{
		SegNo:    segno,
		State:    segdir.Active,
		ModCount: seg.ModCount + 1,
		Columns:  make([]segdir.ColumnEOF, len(sc.columns)),
	}
	if err := sc.segments.Put(seg); err != nil {
		return err
	}
	e.logger.Info("segment reclaimed", "segno", segno, "tuples", reclaimed)
	return nil
}

// RowExists reports whether id names a row that is covered by the block
// directory, or by the placeholder of an insert of this statement, and is
// visible under the statement snapshot. Column data is not read.
func (e *Engine) RowExists(sc *Context, id RowID) (bool, error) {
	if len(sc.columns) == 0 || id.RowNum <= 0 {
		return false, nil
	}
	seg, ok, err := sc.segments.Get(id.SegNo)
	if err != nil {
		return false, err
	}
	if _, inserting := sc.inserts[id.SegNo]; !ok && !inserting {
		return false, nil
	}
	if seg.State == segdir.AwaitingDrop {
		return false, nil
	}
	covered, err := sc.blocks.CoversRow(id.SegNo, sc.columns[0].FileNum, id.RowNum)
	if err != nil || !covered {
		return false, err
	}
	return sc.visimap.IsVisible(id.SegNo, id.RowNum, sc.snapshot)
}
