package aocs

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/aocs/internal/blockdir"
	"github.com/hupe1980/aocs/internal/datumstream"
	"github.com/hupe1980/aocs/internal/engine"
	"github.com/hupe1980/aocs/internal/segdir"
)

// VerifyReport summarizes a successful Verify.
type VerifyReport struct {
	Segments int
	Blocks   int64
	Rows     int64
}

// Verify reads every block of every scannable segment, checks header and
// content checksums, and checks that the block directory describes exactly
// the blocks in the column files and that the visibility map agrees with the
// hidden count of each segment. Segments are verified in parallel, bounded
// by WithBackgroundWorkers. Verify runs with no transaction running.
func (t *Table) Verify(ctx context.Context) (VerifyReport, error) {
	var report VerifyReport
	err := t.exclusive(func() error {
		view := t.aux.NewView()
		sc := t.eng.NewContext(ctx, view, t.cols, engine.IgnoreVisibility)
		segs, err := sc.Segments().Scannable()
		sc.Abort()
		_ = view.Close()
		if err != nil {
			return err
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, seg := range segs {
			if err := t.rc.AcquireBackground(gctx); err != nil {
				if werr := g.Wait(); werr != nil {
					return werr
				}
				return err
			}
			g.Go(func() error {
				defer t.rc.ReleaseBackground()
				blocks, err := t.verifySegment(gctx, seg)
				if err != nil {
					return err
				}
				mu.Lock()
				report.Segments++
				report.Blocks += blocks
				report.Rows += seg.TupleCount
				mu.Unlock()
				return nil
			})
		}
		return g.Wait()
	})
	t.logger.LogVerify(ctx, report, err)
	if err != nil {
		return VerifyReport{}, translateError(err)
	}
	return report, nil
}

// verifySegment checks every column of seg on a view of its own.
func (t *Table) verifySegment(ctx context.Context, seg segdir.Segment) (int64, error) {
	view := t.aux.NewView()
	defer view.Close()
	sc := t.eng.NewContext(ctx, view, t.cols, engine.IgnoreVisibility)
	defer sc.Abort()

	var blocks int64
	for i, col := range t.cols {
		path := datumstream.SegmentFileName(t.dir, t.rel.RelFileNode, col.FileNum, seg.SegNo)
		mismatch := func(offset int64, format string, args ...any) error {
			return &CorruptionError{SegNo: seg.SegNo, Column: col.Name, Path: path, Offset: offset, Err: fmt.Errorf(format, args...)}
		}
		if seg.Column(i).EOF == 0 {
			return 0, mismatch(0, "column file is empty, segment records %d rows", seg.TupleCount)
		}
		entries, err := sc.Blocks().Entries(seg.SegNo, col.FileNum)
		if err != nil {
			return 0, err
		}
		n, rows, err := t.verifyColumn(sc, seg.SegNo, i, entries, mismatch)
		if err != nil {
			return 0, err
		}
		if n != len(entries) {
			return 0, mismatch(seg.Column(i).EOF, "%d blocks in file, %d directory entries", n, len(entries))
		}
		if rows != seg.TupleCount {
			return 0, mismatch(seg.Column(i).EOF, "%d rows in file, segment records %d", rows, seg.TupleCount)
		}
		blocks += int64(n)
	}

	hidden, err := sc.Visimap().HiddenCount(seg.SegNo)
	if err != nil {
		return 0, err
	}
	if hidden != seg.HiddenCount {
		return 0, &CorruptionError{SegNo: seg.SegNo, Err: fmt.Errorf("visibility map hides %d rows, segment records %d", hidden, seg.HiddenCount)}
	}
	return blocks, nil
}

func (t *Table) verifyColumn(sc *engine.Context, segno int32, col int, entries []blockdir.Entry,
	mismatch func(offset int64, format string, args ...any) error) (n int, rows int64, err error) {
	hs, err := t.eng.BeginHeaderScan(sc, segno, col)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if cerr := hs.Close(); err == nil {
			err = cerr
		}
	}()

	for {
		ok, err := hs.Next()
		if err != nil {
			return 0, 0, err
		}
		if !ok {
			return n, rows, nil
		}
		if err := hs.LoadBlock(); err != nil {
			return 0, 0, err
		}
		b := hs.Block()
		if n >= len(entries) {
			return 0, 0, mismatch(b.FileOffset, "block has no directory entry")
		}
		e := entries[n]
		if e.FirstRowNum != hs.FirstRowNum() || e.RowCount != int64(b.RowCount) ||
			e.FileOffset != b.FileOffset || e.AfterFileOffset != b.AfterFileOffset {
			return 0, 0, mismatch(b.FileOffset, "block rows [%d,+%d) bytes [%d,%d) disagree with directory entry rows [%d,+%d) bytes [%d,%d)",
				hs.FirstRowNum(), b.RowCount, b.FileOffset, b.AfterFileOffset,
				e.FirstRowNum, e.RowCount, e.FileOffset, e.AfterFileOffset)
		}
		n++
		rows += int64(b.RowCount)
	}
}
