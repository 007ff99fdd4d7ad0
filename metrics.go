package aocs

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    insertedRows prometheus.Counter
//	    fetchLatency prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordInsert(rows int, duration time.Duration, err error) {
//	    p.insertedRows.Add(float64(rows))
//	}
type MetricsCollector interface {
	// RecordInsert is called after each insert statement with the number of
	// rows it inserted.
	RecordInsert(rows int, duration time.Duration, err error)

	// RecordFetch is called after each fetch by row id.
	RecordFetch(found bool, duration time.Duration, err error)

	// RecordScan is called when a scanner is closed with the number of rows
	// it returned.
	RecordScan(rows int64, duration time.Duration, err error)

	// RecordDelete is called after each delete statement.
	RecordDelete(rows int, duration time.Duration, err error)

	// RecordCommit is called after each commit.
	RecordCommit(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordFetch(bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordScan(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordDelete(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordCommit(time.Duration, error)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertCount      atomic.Int64
	InsertedRows     atomic.Int64
	InsertErrors     atomic.Int64
	InsertTotalNanos atomic.Int64
	FetchCount       atomic.Int64
	FetchMisses      atomic.Int64
	FetchErrors      atomic.Int64
	FetchTotalNanos  atomic.Int64
	ScanCount        atomic.Int64
	ScannedRows      atomic.Int64
	ScanErrors       atomic.Int64
	DeleteCount      atomic.Int64
	DeletedRows      atomic.Int64
	DeleteErrors     atomic.Int64
	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(rows int, duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
		return
	}
	b.InsertedRows.Add(int64(rows))
}

// RecordFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFetch(found bool, duration time.Duration, err error) {
	b.FetchCount.Add(1)
	b.FetchTotalNanos.Add(duration.Nanoseconds())
	switch {
	case err != nil:
		b.FetchErrors.Add(1)
	case !found:
		b.FetchMisses.Add(1)
	}
}

// RecordScan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScan(rows int64, duration time.Duration, err error) {
	b.ScanCount.Add(1)
	b.ScannedRows.Add(rows)
	if err != nil {
		b.ScanErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(rows int, duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
		return
	}
	b.DeletedRows.Add(int64(rows))
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(duration time.Duration, err error) {
	b.CommitCount.Add(1)
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:    b.InsertCount.Load(),
		InsertedRows:   b.InsertedRows.Load(),
		InsertErrors:   b.InsertErrors.Load(),
		InsertAvgNanos: avg(b.InsertTotalNanos.Load(), b.InsertCount.Load()),
		FetchCount:     b.FetchCount.Load(),
		FetchMisses:    b.FetchMisses.Load(),
		FetchErrors:    b.FetchErrors.Load(),
		FetchAvgNanos:  avg(b.FetchTotalNanos.Load(), b.FetchCount.Load()),
		ScanCount:      b.ScanCount.Load(),
		ScannedRows:    b.ScannedRows.Load(),
		ScanErrors:     b.ScanErrors.Load(),
		DeleteCount:    b.DeleteCount.Load(),
		DeletedRows:    b.DeletedRows.Load(),
		DeleteErrors:   b.DeleteErrors.Load(),
		CommitCount:    b.CommitCount.Load(),
		CommitErrors:   b.CommitErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InsertCount    int64
	InsertedRows   int64
	InsertErrors   int64
	InsertAvgNanos int64
	FetchCount     int64
	FetchMisses    int64
	FetchErrors    int64
	FetchAvgNanos  int64
	ScanCount      int64
	ScannedRows    int64
	ScanErrors     int64
	DeleteCount    int64
	DeletedRows    int64
	DeleteErrors   int64
	CommitCount    int64
	CommitErrors   int64
}
