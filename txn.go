package aocs

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/aocs/internal/auxstore"
	"github.com/hupe1980/aocs/internal/engine"
)

// Txn is a transaction on a table. Each call runs as one statement that
// sees everything committed before it started plus the transaction's own
// earlier statements. Writes become visible to others on Commit.
//
// A Txn is not safe for concurrent use. A failed write statement fails the
// whole transaction; it can then only be aborted.
type Txn struct {
	t      *Table
	id     uint64
	view   *auxstore.View
	snap   engine.Snapshot
	logger *Logger

	insertSeg  int32
	hasSeg     bool
	statements int
	scanners   map[*Scanner]struct{}
	failed     error
	done       bool
}

// Begin starts a transaction. It blocks while a schema change or segment
// reclaim runs.
func (t *Table) Begin(ctx context.Context) (*Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.ddl.RLock()
	if err := t.checkOpen(); err != nil {
		t.ddl.RUnlock()
		return nil, err
	}
	id := t.nextTxn.Add(1)
	tx := &Txn{
		t:        t,
		id:       id,
		view:     t.aux.NewView(),
		snap:     engine.NewSnapshot(id),
		logger:   t.logger.WithTxn(id),
		scanners: make(map[*Scanner]struct{}),
	}
	tx.logger.Debug("transaction started")
	return tx, nil
}

// ID returns the transaction id.
func (tx *Txn) ID() uint64 { return tx.id }

func (tx *Txn) check() error {
	if tx.done {
		return ErrTxnDone
	}
	if tx.failed != nil {
		return fmt.Errorf("%w: %w", ErrTxnFailed, tx.failed)
	}
	return nil
}

// statement runs fn as one statement. Errors of write statements fail the
// transaction.
func (tx *Txn) statement(ctx context.Context, write bool, fn func(sc *engine.Context) error) error {
	if err := tx.check(); err != nil {
		return err
	}
	tx.view.Refresh()
	sc := tx.t.eng.NewContext(ctx, tx.view, tx.t.columns(), tx.snap)
	err := fn(sc)
	if err != nil {
		sc.Abort()
	} else {
		err = sc.Finish()
	}
	if err != nil {
		if write {
			tx.failed = err
			tx.logger.Warn("statement failed, transaction must abort", "error", err)
		}
		return translateError(err)
	}
	tx.statements++
	return nil
}

// Insert appends rows and returns their row ids. All rows of a transaction
// go to one segment that no other running transaction writes to.
func (tx *Txn) Insert(ctx context.Context, rows ...Row) ([]RowID, error) {
	start := time.Now()
	var (
		ids   []RowID
		segno int32
	)
	err := tx.statement(ctx, true, func(sc *engine.Context) error {
		var err error
		if segno, err = tx.insertSegment(sc); err != nil {
			return err
		}
		ins, err := sc.Inserter(segno, engine.InsertOptions{UniqueCheck: tx.t.opts.uniqueChecks})
		if err != nil {
			return err
		}
		ids = make([]RowID, 0, len(rows))
		for _, row := range rows {
			id, err := ins.Insert(row)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	tx.t.metrics.RecordInsert(len(rows), time.Since(start), err)
	tx.logger.LogInsert(ctx, segno, len(rows), err)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (tx *Txn) insertSegment(sc *engine.Context) (int32, error) {
	if tx.hasSeg {
		return tx.insertSeg, nil
	}
	segs, err := sc.Segments().List()
	if err != nil {
		return 0, err
	}
	segno, err := tx.t.claimFree(tx, segs)
	if err != nil {
		return 0, err
	}
	tx.insertSeg, tx.hasSeg = segno, true
	return segno, nil
}

// Delete hides rows. Deleting a row twice returns ErrAlreadyHidden.
func (tx *Txn) Delete(ctx context.Context, ids ...RowID) error {
	start := time.Now()
	err := tx.statement(ctx, true, func(sc *engine.Context) error {
		d, err := sc.Deleter()
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := tx.t.claim(tx, id.SegNo); err != nil {
				return err
			}
			if err := d.Delete(id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
		}
		return nil
	})
	tx.t.metrics.RecordDelete(len(ids), time.Since(start), err)
	tx.logger.LogDelete(ctx, len(ids), err)
	return err
}

// Fetch returns the row id addresses, projected onto columns (all columns
// when none are named). found is false when the row is hidden, was never
// stored, or falls into a hole left by an aborted insert.
func (tx *Txn) Fetch(ctx context.Context, id RowID, columns ...string) (row Row, found bool, err error) {
	start := time.Now()
	proj, err := tx.t.projection(columns)
	if err == nil {
		err = tx.statement(ctx, false, func(sc *engine.Context) error {
			f, err := sc.Fetcher(proj, tx.snap)
			if err != nil {
				return err
			}
			r, ok, err := f.Fetch(id)
			if err != nil || !ok {
				return err
			}
			row, found = r.Clone(), true
			return nil
		})
	}
	tx.t.metrics.RecordFetch(found, time.Since(start), err)
	tx.logger.LogFetch(ctx, id, found, err)
	if err != nil {
		return nil, false, err
	}
	return row, found, nil
}

// RowExists reports whether id addresses a visible row, using only the
// block directory and the visibility map.
func (tx *Txn) RowExists(ctx context.Context, id RowID) (bool, error) {
	var exists bool
	err := tx.statement(ctx, false, func(sc *engine.Context) error {
		var err error
		exists, err = tx.t.eng.RowExists(sc, id)
		return err
	})
	return exists, err
}

// RetireSegment marks a segment as awaiting drop. Once committed, the
// segment is invisible to every statement until Table.ReclaimSegment.
func (tx *Txn) RetireSegment(ctx context.Context, segno int32) error {
	err := tx.statement(ctx, true, func(sc *engine.Context) error {
		if err := tx.t.claim(tx, segno); err != nil {
			return err
		}
		return tx.t.eng.RetireSegment(sc, segno)
	})
	if err == nil {
		tx.logger.Info("segment retired", "segno", segno)
	}
	return err
}

// Commit makes the transaction's writes visible. Open scanners are closed.
func (tx *Txn) Commit(ctx context.Context) error {
	if tx.done {
		return ErrTxnDone
	}
	if tx.failed != nil {
		failed := tx.failed
		tx.Abort()
		return fmt.Errorf("%w: %w", ErrTxnFailed, failed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := tx.closeScanners()
	if err == nil {
		err = tx.view.Commit()
	}
	tx.finish()
	tx.t.metrics.RecordCommit(time.Since(start), err)
	tx.logger.LogCommit(ctx, tx.statements, err)
	return translateError(err)
}

// Abort discards the transaction's writes. Aborting a finished transaction
// is a no-op.
func (tx *Txn) Abort() {
	if tx.done {
		return
	}
	_ = tx.closeScanners()
	tx.finish()
	tx.logger.Debug("transaction aborted", "statements", tx.statements)
}

func (tx *Txn) finish() {
	tx.done = true
	_ = tx.view.Close()
	tx.t.release(tx)
	tx.t.ddl.RUnlock()
}

func (tx *Txn) closeScanners() error {
	var first error
	for s := range tx.scanners {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
