package engine

import (
	"fmt"

	"github.com/hupe1980/aocs/internal/datum"
	"github.com/hupe1980/aocs/internal/datumstream"
	"github.com/hupe1980/aocs/internal/segdir"
)

// ScanOptions configures a sequential scan.
type ScanOptions struct {
	// Columns are the projected column positions; empty projects all.
	Columns []int
	// Segments restricts the scan to the listed segments, in that order.
	Segments []int32
	// Snapshot overrides the statement snapshot when set.
	Snapshot *Snapshot
}

// Scan reads rows of the projected columns segment by segment. The column
// readers of a segment advance in lock-step.
type Scan struct {
	sc       *Context
	proj     []int
	cols     []Column
	snapshot Snapshot
	segnos   []int32

	segments []segdir.Segment
	segIdx   int
	readers  []*datumstream.Reader
	counter  int64

	fetcher *Fetcher

	state  ScanState
	id     RowID
	row    datum.Row
	closed bool
}

// BeginScan prepares a scan. The segments are resolved from the statement's
// segment directory.
func (e *Engine) BeginScan(sc *Context, opts ScanOptions) (*Scan, error) {
	proj, err := sc.projection(opts.Columns)
	if err != nil {
		return nil, err
	}
	s := &Scan{
		sc:       sc,
		proj:     proj,
		cols:     make([]Column, len(proj)),
		snapshot: sc.snapshot,
		segnos:   append([]int32(nil), opts.Segments...),
		row:      make(datum.Row, len(proj)),
	}
	for i, c := range proj {
		s.cols[i] = sc.columns[c]
	}
	if opts.Snapshot != nil {
		s.snapshot = *opts.Snapshot
	}
	if err := s.resolveSegments(); err != nil {
		return nil, err
	}
	s.reset()
	return s, nil
}

func (s *Scan) resolveSegments() error {
	if s.segnos == nil {
		segs, err := s.sc.segments.Scannable()
		if err != nil {
			return err
		}
		s.segments = segs
		return nil
	}
	s.segments = s.segments[:0]
	for _, segno := range s.segnos {
		seg, ok, err := s.sc.segments.Get(segno)
		if err != nil {
			return err
		}
		if !ok || seg.State == segdir.AwaitingDrop {
			return fmt.Errorf("%w: segment %d", ErrOutOfScanScope, segno)
		}
		if seg.TupleCount > 0 {
			s.segments = append(s.segments, seg)
		}
	}
	return nil
}

func (s *Scan) reset() {
	s.segIdx = -1
	s.counter = 0
	s.state = ScanInit
	s.id = RowID{}
}

// State returns the position of the scan in its state machine.
func (s *Scan) State() ScanState { return s.state }

// RowID returns the id of the current row.
func (s *Scan) RowID() RowID { return s.id }

// Row returns the projected values of the current row. The slice is reused
// by the next call to Next.
func (s *Scan) Row() datum.Row { return s.row }

// Next moves to the next visible row. It returns false when the scan is done.
func (s *Scan) Next() (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	for {
		switch s.state {
		case ScanDone:
			return false, nil

		case ScanInit, ScanSegmentExhausted:
			if err := s.closeReaders(); err != nil {
				return false, err
			}
			s.segIdx++
			if s.segIdx >= len(s.segments) {
				s.state = ScanDone
				return false, nil
			}
			if err := s.openSegment(s.segments[s.segIdx]); err != nil {
				return false, err
			}
			s.state = ScanSegmentOpen

		default:
			ok, err := s.advance()
			if err != nil {
				return false, err
			}
			if !ok {
				s.state = ScanSegmentExhausted
				continue
			}
			visible, err := s.sc.visimap.IsVisible(s.id.SegNo, s.id.RowNum, s.snapshot)
			if err != nil {
				return false, err
			}
			if !visible {
				continue
			}
			s.state = ScanRowEmit
			return true, nil
		}
	}
}

func (s *Scan) openSegment(seg segdir.Segment) error {
	s.counter = 0
	s.readers = s.readers[:0]
	for i, col := range s.cols {
		eof := seg.Column(s.proj[i]).EOF
		path := s.sc.eng.path(col.FileNum, seg.SegNo)
		if eof == 0 {
			return inconsistent(seg.SegNo, col, path, 0, "segment holds %d rows but the column file is empty", seg.TupleCount)
		}
		r, err := s.sc.eng.openReader(s.sc.ctx, col, seg.SegNo, eof)
		if err != nil {
			return corruption(seg.SegNo, col, path, 0, err)
		}
		s.readers = append(s.readers, r)
	}
	s.sc.logger.Debug("scan segment open", "segno", seg.SegNo, "tuples", seg.TupleCount, "columns", len(s.cols))
	return nil
}

// advance moves every reader to its next value and derives the row number.
func (s *Scan) advance() (bool, error) {
	segno := s.segments[s.segIdx].SegNo
	var (
		rowNum   int64
		resolved bool
		newBlock bool
	)
	for i, r := range s.readers {
		ok, err := r.Advance()
		if err != nil {
			return false, corruption(segno, s.cols[i], r.Path(), r.Block().FileOffset, err)
		}
		if i == 0 && !ok {
			return false, s.checkExhausted(segno)
		}
		if !ok {
			return false, inconsistent(segno, s.cols[i], r.Path(), r.NextOffset(),
				"column ends before row %d of column %q", s.counter+1, s.cols[0].Name)
		}
		if i == 0 && r.Nth() == 0 {
			newBlock = true
		}
		b := r.Block()
		if !b.HasFirstRowNum {
			continue
		}
		n := b.FirstRowNum + int64(r.Nth())
		if !resolved {
			rowNum, resolved = n, true
		} else if n != rowNum {
			return false, inconsistent(segno, s.cols[i], r.Path(), b.FileOffset,
				"row number %d disagrees with %d of column %q", n, rowNum, s.cols[0].Name)
		}
	}
	if !resolved {
		rowNum = s.counter + 1
	}
	s.counter = rowNum
	s.id = RowID{SegNo: segno, RowNum: rowNum}
	for i, r := range s.readers {
		s.row[i] = r.Value()
	}
	if newBlock {
		s.state = ScanBlockLoaded
	}
	return true, nil
}

func (s *Scan) checkExhausted(segno int32) error {
	for i, r := range s.readers[1:] {
		ok, err := r.Advance()
		if err != nil {
			return corruption(segno, s.cols[i+1], r.Path(), r.Block().FileOffset, err)
		}
		if ok {
			return inconsistent(segno, s.cols[i+1], r.Path(), r.Block().FileOffset,
				"column has rows past the end of column %q", s.cols[0].Name)
		}
	}
	return nil
}

// Rescan restarts the scan from the first segment.
func (s *Scan) Rescan() error {
	if s.closed {
		return ErrClosed
	}
	if err := s.closeReaders(); err != nil {
		return err
	}
	if err := s.resolveSegments(); err != nil {
		return err
	}
	s.reset()
	return nil
}

func (s *Scan) closeReaders() error {
	var first error
	for _, r := range s.readers {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.readers = s.readers[:0]
	return first
}

// Close releases the column files. It is idempotent.
func (s *Scan) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.state = ScanDone
	err := s.closeReaders()
	if s.fetcher != nil {
		if ferr := s.fetcher.Close(); err == nil {
			err = ferr
		}
	}
	return err
}
