package engine

import (
	"fmt"

	"github.com/hupe1980/aocs/internal/datum"
	"github.com/hupe1980/aocs/internal/segdir"
)

// NewColumn is a column added by AddColumns. Default is evaluated once per
// existing row; a nil Default stores NULL.
type NewColumn struct {
	Column      Column
	Default     Expr
	Constraints []Constraint
}

// AlterColumn rewrites the column at position Index into Column, which
// carries the new file number and storage options. Cast converts every
// stored value; a nil Cast copies values unchanged.
type AlterColumn struct {
	Index       int
	Column      Column
	Cast        Cast
	Constraints []Constraint
}

// anchorColumn picks the existing column whose files are replayed to find
// the block boundaries: the column with the smallest non-zero EOF in the
// first non-empty segment that is not awaiting drop.
func anchorColumn(segs []segdir.Segment, ncols int) (int, bool) {
	for _, seg := range segs {
		if !seg.Scannable() {
			continue
		}
		best, bestEOF := -1, int64(0)
		for i := 0; i < ncols; i++ {
			eof := seg.Column(i).EOF
			if eof > 0 && (best < 0 || eof < bestEOF) {
				best, bestEOF = i, eof
			}
		}
		return best, best >= 0
	}
	return 0, false
}

// AddColumns writes the files of the new columns for every segment. The
// block boundaries and holes of an existing anchor column are replayed, so
// the new files hold exactly one value per physically present row, hidden
// rows included. On success the statement's columns include the new ones.
func (e *Engine) AddColumns(sc *Context, cols []NewColumn) error {
	if len(cols) == 0 {
		return nil
	}
	segs, err := sc.segments.List()
	if err != nil {
		return err
	}
	ncols := len(sc.columns)
	anchor, hasAnchor := anchorColumn(segs, ncols)

	for _, seg := range segs {
		if seg.State == segdir.AwaitingDrop {
			continue
		}
		for len(seg.Columns) < ncols {
			seg.Columns = append(seg.Columns, segdir.ColumnEOF{})
		}
		if seg.TupleCount == 0 || !hasAnchor {
			seg.Columns = append(seg.Columns, make([]segdir.ColumnEOF, len(cols))...)
			if err := sc.segments.Put(seg); err != nil {
				return err
			}
			continue
		}
		if err := e.addToSegment(sc, seg, anchor, cols); err != nil {
			return err
		}
	}

	all := append([]Column(nil), sc.columns...)
	for _, nc := range cols {
		all = append(all, nc.Column)
	}
	sc.SetColumns(all)
	e.logger.Info("columns added", "columns", len(cols), "segments", len(segs), "anchor", anchor)
	return nil
}

func (e *Engine) addToSegment(sc *Context, seg segdir.Segment, anchor int, cols []NewColumn) (err error) {
	writers := make([]*columnWriter, 0, len(cols))
	defer func() {
		if err != nil {
			for _, cw := range writers {
				cw.abort()
			}
		}
	}()
	for _, nc := range cols {
		w, err := e.openWriter(sc.ctx, nc.Column, seg.SegNo, 0, 0)
		if err != nil {
			return corruption(seg.SegNo, nc.Column, e.path(nc.Column.FileNum, seg.SegNo), 0, err)
		}
		writers = append(writers, &columnWriter{col: nc.Column, segno: seg.SegNo, w: w, blocks: sc.blocks})
	}

	hs, err := e.BeginHeaderScan(sc, seg.SegNo, anchor)
	if err != nil {
		return err
	}
	defer hs.Close()

	var rows int64
	for {
		ok, err := hs.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		first := hs.FirstRowNum()
		for k := int64(0); k < int64(hs.Block().RowCount); k++ {
			id := RowID{SegNo: seg.SegNo, RowNum: first + k}
			for j, nc := range cols {
				d := datum.NullDatum()
				if nc.Default != nil {
					if d, err = nc.Default(id); err != nil {
						return fmt.Errorf("engine: default of column %q for row %s: %w", nc.Column.Name, id, err)
					}
				}
				if err := checkValue(nc.Column, nc.Constraints, id, d); err != nil {
					return err
				}
				if err := writers[j].put(id.RowNum, d); err != nil {
					return corruption(seg.SegNo, nc.Column, writers[j].w.Path(), 0, err)
				}
			}
			rows++
		}
		for _, cw := range writers {
			if err := cw.flush(); err != nil {
				return corruption(seg.SegNo, cw.col, cw.w.Path(), 0, err)
			}
		}
	}
	if rows != seg.TupleCount {
		col := sc.columns[anchor]
		return inconsistent(seg.SegNo, col, e.path(col.FileNum, seg.SegNo), 0,
			"anchor column holds %d rows, segment records %d", rows, seg.TupleCount)
	}

	for _, cw := range writers {
		eof, ueof, err := cw.close()
		if err != nil {
			return corruption(seg.SegNo, cw.col, cw.w.Path(), 0, err)
		}
		seg.Columns = append(seg.Columns, segdir.ColumnEOF{EOF: eof, UncompressedEOF: ueof})
		seg.VarblockCount += cw.w.BlocksWritten()
	}
	seg.ModCount++
	sc.logger.Debug("column add replayed", "segno", seg.SegNo, "rows", rows, "anchor", anchor)
	return sc.segments.Put(seg)
}

// AlterColumns rewrites the altered columns of every segment into new files.
// Every physically present row is re-read, hidden rows included. The old
// files stay untouched; the caller removes them once the change commits.
// It returns the relation's columns after the change.
func (e *Engine) AlterColumns(sc *Context, alters []AlterColumn) ([]Column, error) {
	if len(alters) == 0 {
		return sc.Columns(), nil
	}
	newCols := append([]Column(nil), sc.columns...)
	proj := make([]int, len(alters))
	seen := make(map[int]bool, len(alters))
	for i, a := range alters {
		old, err := sc.column(a.Index)
		if err != nil {
			return nil, err
		}
		if seen[a.Index] {
			return nil, fmt.Errorf("%w: column %q altered twice", ErrInvalidArgument, old.Name)
		}
		if a.Column.FileNum == old.FileNum {
			return nil, fmt.Errorf("%w: column %q rewritten into its own file number %d", ErrInvalidArgument, old.Name, old.FileNum)
		}
		seen[a.Index] = true
		proj[i] = a.Index
		newCols[a.Index] = a.Column
	}

	segs, err := sc.segments.List()
	if err != nil {
		return nil, err
	}
	for _, seg := range segs {
		if seg.State == segdir.AwaitingDrop {
			continue
		}
		for len(seg.Columns) < len(newCols) {
			seg.Columns = append(seg.Columns, segdir.ColumnEOF{})
		}
		if err := e.alterSegment(sc, seg, proj, alters); err != nil {
			return nil, err
		}
	}

	sc.SetColumns(newCols)
	e.logger.Info("columns altered", "columns", len(alters), "segments", len(segs))
	return newCols, nil
}

func (e *Engine) alterSegment(sc *Context, seg segdir.Segment, proj []int, alters []AlterColumn) (err error) {
	writers := make([]*columnWriter, 0, len(alters))
	defer func() {
		if err != nil {
			for _, cw := range writers {
				cw.abort()
			}
		}
	}()
	for _, a := range alters {
		w, err := e.openWriter(sc.ctx, a.Column, seg.SegNo, 0, 0)
		if err != nil {
			return corruption(seg.SegNo, a.Column, e.path(a.Column.FileNum, seg.SegNo), 0, err)
		}
		writers = append(writers, &columnWriter{col: a.Column, segno: seg.SegNo, w: w, blocks: sc.blocks})
	}

	if seg.TupleCount > 0 {
		ignore := IgnoreVisibility
		scan, err := e.BeginScan(sc, ScanOptions{Columns: proj, Segments: []int32{seg.SegNo}, Snapshot: &ignore})
		if err != nil {
			return err
		}
		defer scan.Close()
		for {
			ok, err := scan.Next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			id := scan.RowID()
			for j, a := range alters {
				d := scan.Row()[j]
				if a.Cast != nil {
					if d, err = a.Cast(d); err != nil {
						return fmt.Errorf("engine: cast column %q for row %s: %w", a.Column.Name, id, err)
					}
				}
				if err := checkValue(a.Column, a.Constraints, id, d); err != nil {
					return err
				}
				if err := writers[j].put(id.RowNum, d); err != nil {
					return corruption(seg.SegNo, a.Column, writers[j].w.Path(), 0, err)
				}
			}
		}
	}

	var oldBlocks int64
	for j, cw := range writers {
		eof, ueof, err := cw.close()
		if err != nil {
			return corruption(seg.SegNo, cw.col, cw.w.Path(), 0, err)
		}
		old := sc.columns[alters[j].Index]
		entries, err := sc.blocks.Entries(seg.SegNo, old.FileNum)
		if err != nil {
			return err
		}
		oldBlocks += int64(len(entries))
		sc.blocks.DeleteFile(seg.SegNo, old.FileNum)
		seg.Columns[alters[j].Index] = segdir.ColumnEOF{EOF: eof, UncompressedEOF: ueof}
		seg.VarblockCount += cw.w.BlocksWritten()
	}
	seg.VarblockCount = max(seg.VarblockCount-oldBlocks, 0)
	seg.ModCount++
	return sc.segments.Put(seg)
}
