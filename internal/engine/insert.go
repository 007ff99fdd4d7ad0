package engine

import (
	"fmt"

	"github.com/hupe1980/aocs/internal/auxstore"
	"github.com/hupe1980/aocs/internal/datum"
	"github.com/hupe1980/aocs/internal/datumstream"
	"github.com/hupe1980/aocs/internal/segdir"
)

// InsertOptions configures an insert descriptor.
type InsertOptions struct {
	// UniqueCheck installs a block directory placeholder so that RowExists
	// sees rows of this statement before their block is flushed.
	UniqueCheck bool
}

// Inserter appends rows to one segment. Only one Inserter per segment may be
// active at a time.
type Inserter struct {
	sc    *Context
	seg   segdir.Segment
	cols  []*columnWriter
	opts  InsertOptions
	fresh bool

	nextRow  int64
	lastRow  int64
	inserted int64
	done     bool
}

// BeginInsert opens every column file of segno for appending at its
// recorded EOF. A segment that does not exist yet is created.
func (e *Engine) BeginInsert(sc *Context, segno int32, opts InsertOptions) (*Inserter, error) {
	if segno < 0 || segno >= datumstream.MaxSegments {
		return nil, fmt.Errorf("%w: segment number %d", ErrInvalidArgument, segno)
	}
	if len(sc.columns) == 0 {
		return nil, fmt.Errorf("%w: relation has no columns", ErrInvalidArgument)
	}
	seg, ok, err := sc.segments.Get(segno)
	if err != nil {
		return nil, err
	}
	if !ok {
		seg = segdir.Segment{SegNo: segno, State: segdir.Active}
	}
	if seg.State == segdir.AwaitingDrop {
		return nil, fmt.Errorf("%w: cannot insert into segment %d", ErrAwaitingDrop, segno)
	}
	for len(seg.Columns) < len(sc.columns) {
		seg.Columns = append(seg.Columns, segdir.ColumnEOF{})
	}

	ins := &Inserter{sc: sc, seg: seg, opts: opts, fresh: !ok}
	for i, col := range sc.columns {
		eof := seg.Columns[i]
		w, err := e.openWriter(sc.ctx, col, segno, eof.EOF, eof.UncompressedEOF)
		if err != nil {
			ins.Abort()
			return nil, corruption(segno, col, e.path(col.FileNum, segno), eof.EOF, err)
		}
		ins.cols = append(ins.cols, &columnWriter{col: col, segno: segno, w: w, blocks: sc.blocks})
	}

	sc.logger.Debug("insert begin", "segno", segno, "tuples", seg.TupleCount, "new", !ok)
	return ins, nil
}

// SegNo returns the segment the descriptor writes to.
func (ins *Inserter) SegNo() int32 { return ins.seg.SegNo }

// Inserted returns the number of rows inserted so far.
func (ins *Inserter) Inserted() int64 { return ins.inserted }

// Insert appends row, which holds one value per column, and returns its id.
func (ins *Inserter) Insert(row datum.Row) (RowID, error) {
	if ins.done {
		return RowID{}, ErrClosed
	}
	if len(row) != len(ins.cols) {
		return RowID{}, fmt.Errorf("%w: row has %d values, relation has %d columns", ErrInvalidArgument, len(row), len(ins.cols))
	}
	if ins.nextRow == 0 || ins.nextRow > ins.lastRow {
		if err := ins.allocate(); err != nil {
			return RowID{}, err
		}
	}

	id := RowID{SegNo: ins.seg.SegNo, RowNum: ins.nextRow}
	for i, cw := range ins.cols {
		if err := checkValue(cw.col, nil, id, row[i]); err != nil {
			return RowID{}, err
		}
	}
	for i, cw := range ins.cols {
		if err := cw.put(id.RowNum, row[i]); err != nil {
			return RowID{}, corruption(id.SegNo, cw.col, cw.w.Path(), 0, err)
		}
	}
	ins.nextRow++
	ins.inserted++
	if ins.opts.UniqueCheck {
		if err := ins.updatePlaceholder(); err != nil {
			return RowID{}, err
		}
	}
	return id, nil
}

// allocate reserves the next batch of row numbers. Numbers reserved by
// other statements or lost to aborts leave a hole.
func (ins *Inserter) allocate() error {
	first, err := ins.sc.eng.aux.AllocateSequences(ins.seg.SegNo, auxstore.NumSequences)
	if err != nil {
		return fmt.Errorf("engine: allocate row numbers for segment %d: %w", ins.seg.SegNo, err)
	}
	if ins.nextRow != 0 && first != ins.lastRow+1 {
		ins.sc.logger.Debug("row number gap", "segno", ins.seg.SegNo, "from", ins.lastRow+1, "to", first)
	}
	ins.nextRow = first
	ins.lastRow = first + auxstore.NumSequences - 1
	if ins.opts.UniqueCheck {
		return ins.updatePlaceholder()
	}
	return nil
}

// updatePlaceholder makes the unflushed rows of the first column visible to
// CoversRow.
func (ins *Inserter) updatePlaceholder() error {
	cw := ins.cols[0]
	first := cw.pendingFirstRowNum()
	if first == 0 {
		first = ins.nextRow
	}
	if first > ins.lastRow {
		ins.sc.blocks.RemovePlaceholder(ins.seg.SegNo, cw.col.FileNum)
		return nil
	}
	eof, _ := cw.w.EOF()
	return ins.sc.blocks.InsertPlaceholder(ins.seg.SegNo, cw.col.FileNum, first, ins.lastRow-first+1, eof)
}

// Finish flushes every open block, closes the files and stages the new
// EOFs and row counts in the segment directory.
func (ins *Inserter) Finish() error {
	if ins.done {
		return nil
	}
	ins.done = true

	var blocks int64
	for i, cw := range ins.cols {
		eof, ueof, err := cw.close()
		if err != nil {
			ins.abortWriters()
			return corruption(ins.seg.SegNo, cw.col, cw.w.Path(), 0, err)
		}
		ins.seg.Columns[i] = segdir.ColumnEOF{EOF: eof, UncompressedEOF: ueof}
		blocks += cw.w.BlocksWritten()
	}
	ins.sc.blocks.RemovePlaceholder(ins.seg.SegNo, ins.cols[0].col.FileNum)

	if ins.inserted == 0 && !ins.fresh {
		return nil
	}
	ins.seg.TupleCount += ins.inserted
	ins.seg.VarblockCount += blocks
	ins.seg.ModCount++
	if err := ins.sc.segments.Put(ins.seg); err != nil {
		return err
	}
	ins.sc.logger.Debug("insert finished", "segno", ins.seg.SegNo, "rows", ins.inserted, "blocks", blocks)
	return nil
}

// Abort drops unflushed values and closes the files. Bytes already written
// past the recorded EOF are truncated by the next writer.
func (ins *Inserter) Abort() {
	if len(ins.cols) > 0 {
		ins.sc.blocks.RemovePlaceholder(ins.seg.SegNo, ins.cols[0].col.FileNum)
	}
	ins.done = true
	ins.abortWriters()
}

func (ins *Inserter) abortWriters() {
	for _, cw := range ins.cols {
		cw.abort()
	}
}
