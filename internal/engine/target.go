package engine

import (
	"github.com/hupe1980/aocs/internal/datum"
	"github.com/hupe1980/aocs/internal/segdir"
)

// GetTargetRow returns the row at 0-based position target among the
// physically present rows of the scan's segments, hidden rows included in
// the count. It reports false when target is past the end or the row is
// not visible under the scan's snapshot. The scan position is unchanged.
func (s *Scan) GetTargetRow(target int64) (RowID, datum.Row, bool, error) {
	if s.closed {
		return RowID{}, nil, false, ErrClosed
	}
	if target < 0 {
		return RowID{}, nil, false, nil
	}

	var seg segdir.Segment
	found := false
	for _, sg := range s.segments {
		if target < sg.TupleCount {
			seg, found = sg, true
			break
		}
		target -= sg.TupleCount
	}
	if !found {
		return RowID{}, nil, false, nil
	}

	rowNum, ok, err := s.locateTarget(seg, target)
	if err != nil || !ok {
		return RowID{}, nil, false, err
	}
	id := RowID{SegNo: seg.SegNo, RowNum: rowNum}

	visible, err := s.sc.visimap.IsVisible(id.SegNo, id.RowNum, s.snapshot)
	if err != nil || !visible {
		return RowID{}, nil, false, err
	}
	if s.fetcher == nil {
		f, err := s.sc.eng.BeginFetch(s.sc, s.proj, IgnoreVisibility)
		if err != nil {
			return RowID{}, nil, false, err
		}
		s.fetcher = f
	}
	row, ok, err := s.fetcher.Fetch(id)
	if err != nil || !ok {
		return RowID{}, nil, false, err
	}
	return id, row, true, nil
}

func (s *Scan) locateTarget(seg segdir.Segment, local int64) (int64, bool, error) {
	strategy := s.sc.eng.targetStrategy
	if strategy != TargetSequential {
		rowNum, ok, present, err := s.locateByDirectory(seg, local)
		if err != nil {
			return 0, false, err
		}
		if present {
			return rowNum, ok, nil
		}
		if strategy == TargetDirectory {
			col := s.cols[0]
			return 0, false, inconsistent(seg.SegNo, col, s.sc.eng.path(col.FileNum, seg.SegNo), 0,
				"segment holds %d rows but has no block directory entries", seg.TupleCount)
		}
	}
	return s.locateSequential(seg, local)
}

// locateByDirectory accumulates the row counts of the block directory
// entries of the first projected column that has any. present is false when
// no projected column has entries.
func (s *Scan) locateByDirectory(seg segdir.Segment, local int64) (rowNum int64, ok, present bool, err error) {
	for _, col := range s.cols {
		entries, err := s.sc.blocks.Entries(seg.SegNo, col.FileNum)
		if err != nil {
			return 0, false, false, err
		}
		if len(entries) == 0 {
			continue
		}
		for _, e := range entries {
			if local < e.RowCount {
				return e.FirstRowNum + local, true, true, nil
			}
			local -= e.RowCount
		}
		return 0, false, true, nil
	}
	return 0, false, false, nil
}

// locateSequential walks the block headers of the first projected column.
func (s *Scan) locateSequential(seg segdir.Segment, local int64) (int64, bool, error) {
	hs, err := s.sc.eng.BeginHeaderScan(s.sc, seg.SegNo, s.proj[0])
	if err != nil {
		return 0, false, err
	}
	defer hs.Close()
	for {
		ok, err := hs.Next()
		if err != nil || !ok {
			return 0, false, err
		}
		b := hs.Block()
		if local < int64(b.RowCount) {
			return hs.FirstRowNum() + local, true, nil
		}
		local -= int64(b.RowCount)
	}
}
