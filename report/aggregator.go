package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned when writing to a closed aggregator or sink.
var ErrClosed = errors.New("report: closed")

// Aggregator collects finalized records in finalize order.
// Records can be appended but never modified or removed.
type Aggregator struct {
	mu      sync.Mutex
	sink    Sink
	records []RunRecord
	closed  bool
}

// NewAggregator creates an aggregator that forwards records to sink.
// A nil sink discards them.
func NewAggregator(sink Sink) *Aggregator {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &Aggregator{sink: sink}
}

// Finalize stores a copy of r and hands it to the sink. The record is kept
// even if the sink fails.
func (a *Aggregator) Finalize(ctx context.Context, r RunRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	a.records = append(a.records, r.Clone())
	if err := a.sink.Write(ctx, r.Clone()); err != nil {
		return fmt.Errorf("report: write record %s: %w", r.RunID, err)
	}
	return nil
}

// Records returns copies of all finalized records in finalize order.
func (a *Aggregator) Records() []RunRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]RunRecord, len(a.records))
	for i, r := range a.records {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of finalized records.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Close closes the sink. Subsequent calls are no-ops.
func (a *Aggregator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	return a.sink.Close()
}
