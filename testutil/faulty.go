package testutil

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecbench/distance"
	"github.com/hupe1980/vecbench/provider"
)

// ErrInjected is the cause of every failure produced by FaultyProvider.
var ErrInjected = errors.New("injected fault")

// FaultyProvider wraps a provider and injects failures, delays and contract
// violations. Hooks must be set before the provider is used.
type FaultyProvider struct {
	provider.Provider

	// FailBuild makes Build return a *provider.BuildError for matching params.
	FailBuild func(p provider.Params) bool

	// FailQuery is consulted with the 1-based call number of every Query.
	FailQuery func(call int64) bool

	// QueryDelay is slept (ignoring cancellation) before every Query.
	QueryDelay time.Duration

	// ExtraResults appends that many fabricated neighbors to every result.
	ExtraResults int

	// OnQuery is invoked at the start of every Query.
	OnQuery func(ctx context.Context, vector []float32)

	builds  atomic.Int64
	queries atomic.Int64
	closes  atomic.Int64
}

// NewFaultyProvider wraps p without any faults configured.
func NewFaultyProvider(p provider.Provider) *FaultyProvider {
	return &FaultyProvider{Provider: p}
}

// Build implements provider.Provider.
func (f *FaultyProvider) Build(ctx context.Context, vectors [][]float32, metric distance.Metric, p provider.Params) (provider.Handle, error) {
	f.builds.Add(1)
	if f.FailBuild != nil && f.FailBuild(p) {
		return nil, &provider.BuildError{Provider: f.Name(), Params: p, Err: ErrInjected}
	}
	return f.Provider.Build(ctx, vectors, metric, p)
}

// Query implements provider.Provider.
func (f *FaultyProvider) Query(ctx context.Context, h provider.Handle, vector []float32, p provider.Params, k int) ([]provider.Neighbor, error) {
	call := f.queries.Add(1)
	if f.OnQuery != nil {
		f.OnQuery(ctx, vector)
	}
	if f.QueryDelay > 0 {
		time.Sleep(f.QueryDelay)
	}
	if f.FailQuery != nil && f.FailQuery(call) {
		return nil, &provider.QueryError{Provider: f.Name(), Err: ErrInjected}
	}

	res, err := f.Provider.Query(ctx, h, vector, p, k)
	if err != nil {
		return nil, err
	}
	for i := 0; i < f.ExtraResults; i++ {
		res = append(res, provider.Neighbor{ID: uint32(i), Distance: float32(i)})
	}
	return res, nil
}

// Close implements provider.Provider.
func (f *FaultyProvider) Close(h provider.Handle) error {
	f.closes.Add(1)
	return f.Provider.Close(h)
}

// Builds returns the number of Build calls.
func (f *FaultyProvider) Builds() int64 { return f.builds.Load() }

// Queries returns the number of Query calls.
func (f *FaultyProvider) Queries() int64 { return f.queries.Load() }

// Closes returns the number of Close calls.
func (f *FaultyProvider) Closes() int64 { return f.closes.Load() }
