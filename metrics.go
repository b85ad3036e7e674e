package vecbench

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordBuild is called after each build or load attempt.
	RecordBuild(duration time.Duration, err error)

	// RecordQuery is called after each measured query. Warm-up queries are
	// not reported.
	RecordQuery(latency time.Duration, err error)

	// RecordRun is called after each run, including aborted ones.
	RecordRun(qps, recall float64, aborted bool)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBuild(time.Duration, error) {}
func (NoopMetricsCollector) RecordQuery(time.Duration, error) {}
func (NoopMetricsCollector) RecordRun(float64, float64, bool) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	BuildCount      atomic.Int64
	BuildErrors     atomic.Int64
	BuildTotalNanos atomic.Int64
	QueryCount      atomic.Int64
	QueryErrors     atomic.Int64
	QueryTotalNanos atomic.Int64
	RunCount        atomic.Int64
	RunAborts       atomic.Int64
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(latency time.Duration, err error) {
	b.QueryCount.Add(1)
	if err != nil {
		b.QueryErrors.Add(1)
		return
	}
	b.QueryTotalNanos.Add(latency.Nanoseconds())
}

// RecordRun implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRun(_, _ float64, aborted bool) {
	b.RunCount.Add(1)
	if aborted {
		b.RunAborts.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BuildCount:    b.BuildCount.Load(),
		BuildErrors:   b.BuildErrors.Load(),
		QueryCount:    b.QueryCount.Load(),
		QueryErrors:   b.QueryErrors.Load(),
		QueryAvgNanos: b.getAvgQueryNanos(),
		RunCount:      b.RunCount.Load(),
		RunAborts:     b.RunAborts.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgQueryNanos() int64 {
	ok := b.QueryCount.Load() - b.QueryErrors.Load()
	if ok <= 0 {
		return 0
	}
	return b.QueryTotalNanos.Load() / ok
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BuildCount    int64
	BuildErrors   int64
	QueryCount    int64
	QueryErrors   int64
	QueryAvgNanos int64
	RunCount      int64
	RunAborts     int64
}
