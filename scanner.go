package aocs

import (
	"context"
	"iter"
	"time"

	"github.com/hupe1980/aocs/internal/auxstore"
	"github.com/hupe1980/aocs/internal/engine"
)

type scanOptions struct {
	columns          []string
	segments         []int32
	ignoreVisibility bool
}

// ScanOption configures Txn.Scan.
type ScanOption func(*scanOptions)

// WithScanColumns projects the scan onto the named columns.
func WithScanColumns(names ...string) ScanOption {
	return func(o *scanOptions) {
		o.columns = names
	}
}

// WithScanSegments restricts the scan to the given segments, in order.
func WithScanSegments(segnos ...int32) ScanOption {
	return func(o *scanOptions) {
		o.segments = segnos
	}
}

// WithIgnoreVisibility returns hidden rows too.
func WithIgnoreVisibility() ScanOption {
	return func(o *scanOptions) {
		o.ignoreVisibility = true
	}
}

// Scanner iterates the rows of a table in physical order: segment by
// segment, ascending row number within a segment.
//
//	s, err := tx.Scan(ctx)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	for s.Next() {
//		use(s.RowID(), s.Row())
//	}
//	return s.Err()
type Scanner struct {
	tx    *Txn
	view  *auxstore.View
	sc    *engine.Context
	scan  *engine.Scan
	start time.Time
	rows  int64
	err   error
	done  bool
}

// Scan starts a scan. The scanner is closed at the latest when the
// transaction ends.
func (tx *Txn) Scan(ctx context.Context, opts ...ScanOption) (*Scanner, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	var so scanOptions
	for _, fn := range opts {
		fn(&so)
	}
	proj, err := tx.t.projection(so.columns)
	if err != nil {
		return nil, err
	}

	// The scan keeps its statement view until Close; later statements of
	// the transaction must not move it.
	view := tx.view.Fork()
	sc := tx.t.eng.NewContext(ctx, view, tx.t.columns(), tx.snap)
	eo := engine.ScanOptions{Columns: proj, Segments: so.segments}
	if so.ignoreVisibility {
		ignore := engine.IgnoreVisibility
		eo.Snapshot = &ignore
	}
	scan, err := sc.Scan(eo)
	if err != nil {
		sc.Abort()
		_ = view.Close()
		return nil, translateError(err)
	}
	s := &Scanner{tx: tx, view: view, sc: sc, scan: scan, start: time.Now()}
	tx.scanners[s] = struct{}{}
	return s, nil
}

// Next advances to the next visible row. It returns false at the end of the
// scan or on error; see Err.
func (s *Scanner) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	ok, err := s.scan.Next()
	if err != nil {
		s.err = translateError(err)
		return false
	}
	if ok {
		s.rows++
	}
	return ok
}

// RowID returns the id of the current row.
func (s *Scanner) RowID() RowID { return s.scan.RowID() }

// Row returns the current row. The slice is reused by the next call to
// Next; use Row.Clone to keep it.
func (s *Scanner) Row() Row { return s.scan.Row() }

// Err returns the error that stopped the scan, if any.
func (s *Scanner) Err() error { return s.err }

// Rescan restarts the scan from the first segment.
func (s *Scanner) Rescan() error {
	if s.done {
		return ErrClosed
	}
	s.err = nil
	return translateError(s.scan.Rescan())
}

// Target returns the n-th row (counting from zero over every physically
// stored row in scan order, hidden rows included) without moving the scan.
// found is false when n is past the end or the row is not visible.
func (s *Scanner) Target(n int64) (id RowID, row Row, found bool, err error) {
	if s.done {
		return RowID{}, nil, false, ErrClosed
	}
	id, row, found, err = s.scan.GetTargetRow(n)
	if err != nil {
		return RowID{}, nil, false, translateError(err)
	}
	if found {
		row = row.Clone()
	}
	return id, row, found, nil
}

// All returns an iterator over the remaining rows. Rows are cloned. Check
// Err after the loop.
func (s *Scanner) All() iter.Seq2[RowID, Row] {
	return func(yield func(RowID, Row) bool) {
		for s.Next() {
			if !yield(s.RowID(), s.Row().Clone()) {
				return
			}
		}
	}
}

// Close releases the scanner's files. It is idempotent.
func (s *Scanner) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	delete(s.tx.scanners, s)
	err := s.sc.Finish()
	if cerr := s.view.Close(); err == nil {
		err = cerr
	}
	s.tx.t.metrics.RecordScan(s.rows, time.Since(s.start), s.err)
	return translateError(err)
}
