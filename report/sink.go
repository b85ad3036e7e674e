package report

import (
	"context"
	"errors"
	"sync"
)

// Sink receives finalized records.
type Sink interface {
	Write(ctx context.Context, r RunRecord) error
	Close() error
}

// DiscardSink drops every record.
type DiscardSink struct{}

func (DiscardSink) Write(context.Context, RunRecord) error { return nil }
func (DiscardSink) Close() error                           { return nil }

// MemorySink keeps records in memory. Safe for concurrent use.
type MemorySink struct {
	mu      sync.Mutex
	records []RunRecord
	closed  bool
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends a copy of r.
func (s *MemorySink) Write(_ context.Context, r RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.records = append(s.records, r.Clone())
	return nil
}

// Records returns copies of the written records in write order.
func (s *MemorySink) Records() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunRecord, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// Closed reports whether Close was called.
func (s *MemorySink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close marks the sink closed.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// MultiSink fans records out to several sinks. A failing sink does not stop
// delivery to the others; all errors are joined.
type MultiSink []Sink

// Write writes r to every sink.
func (m MultiSink) Write(ctx context.Context, r RunRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopCloser returns a Sink whose Close is a no-op, for sinks owned elsewhere.
func NopCloser(s Sink) Sink {
	return nopCloser{s}
}

type nopCloser struct{ Sink }

func (nopCloser) Close() error { return nil }
