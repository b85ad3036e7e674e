package query

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hupe1980/vecbench/distance"
	"github.com/hupe1980/vecbench/provider"
	"github.com/hupe1980/vecbench/provider/flat"
	"github.com/hupe1980/vecbench/testutil"
)

type fixture struct {
	p       *testutil.FaultyProvider
	h       provider.Handle
	base    [][]float32
	queries [][]float32
}

func newFixture(t *testing.T, numQueries int) *fixture {
	t.Helper()
	rng := testutil.NewRNG(4711)
	base := rng.UniformVectors(200, 8)
	queries := rng.UniformVectors(numQueries, 8)

	p := testutil.NewFaultyProvider(flat.New())
	h, err := p.Build(context.Background(), base, distance.MetricL2, provider.Params{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(h) })

	return &fixture{p: p, h: h, base: base, queries: queries}
}

func baseConfig() Config {
	return Config{Concurrency: 4, K: 5, FailureThreshold: NoFailureLimit}
}

func assertInvariant(t *testing.T, out *Outcome) {
	t.Helper()
	assert.Equal(t, out.Dispatched, len(out.Results)+out.Failed)
	for i := 1; i < len(out.Results); i++ {
		assert.Less(t, out.Results[i-1].QueryID, out.Results[i].QueryID)
	}
}

func TestRunCompleteness(t *testing.T) {
	f := newFixture(t, 100)
	truth := testutil.ExactGroundTruth(f.base, f.queries, distance.SquaredL2, 5)

	var observed atomic.Int64
	e := New(f.p, WithObserver(func(time.Duration, error) { observed.Add(1) }))

	cfg := baseConfig()
	cfg.Concurrency = 8
	out, err := e.Run(context.Background(), f.h, f.queries, cfg)
	require.NoError(t, err)
	assertInvariant(t, out)

	assert.Equal(t, 100, out.Dispatched)
	assert.Zero(t, out.Failed)
	assert.False(t, out.Partial)
	assert.Positive(t, out.Elapsed)
	assert.Equal(t, int64(100), observed.Load())
	require.Len(t, out.Results, 100)
	for i, r := range out.Results {
		assert.Equal(t, i, r.QueryID)
		assert.Equal(t, truth[i], r.NeighborIDs)
		assert.LessOrEqual(t, len(r.NeighborIDs), cfg.K)
	}
	assert.Len(t, out.Latencies(), 100)
}

func TestRunConcurrencyInvariance(t *testing.T) {
	f := newFixture(t, 64)
	e := New(f.p)

	run := func(c int) []Result {
		cfg := baseConfig()
		cfg.Concurrency = c
		out, err := e.Run(context.Background(), f.h, f.queries, cfg)
		require.NoError(t, err)
		return out.Results
	}

	one, eight := run(1), run(8)
	require.Len(t, eight, len(one))
	for i := range one {
		assert.Equal(t, one[i].QueryID, eight[i].QueryID)
		assert.Equal(t, one[i].NeighborIDs, eight[i].NeighborIDs)
	}
}

func TestRunAbortsOnThreshold(t *testing.T) {
	f := newFixture(t, 50)
	f.p.FailQuery = func(int64) bool { return true }

	cfg := baseConfig()
	cfg.FailureThreshold = 0
	out, err := New(f.p).Run(context.Background(), f.h, f.queries, cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkloadAborted)
	assert.ErrorIs(t, err, testutil.ErrInjected)
	var ae *AbortError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 0, ae.Threshold)

	require.NotNil(t, out)
	assertInvariant(t, out)
	assert.GreaterOrEqual(t, out.Failed, 1)
	// In-flight queries at most one per worker complete after the abort.
	assert.LessOrEqual(t, out.Dispatched, cfg.Concurrency)
}

func TestRunThresholdNotExceeded(t *testing.T) {
	f := newFixture(t, 50)
	f.p.FailQuery = func(call int64) bool { return call%10 == 0 }

	cfg := baseConfig()
	cfg.Concurrency = 1
	cfg.FailureThreshold = 5
	out, err := New(f.p).Run(context.Background(), f.h, f.queries, cfg)
	require.NoError(t, err)
	assertInvariant(t, out)
	assert.Equal(t, 5, out.Failed)
	assert.Equal(t, 50, out.Dispatched)
}

func TestRunUnlimitedFailures(t *testing.T) {
	f := newFixture(t, 20)
	f.p.FailQuery = func(int64) bool { return true }

	out, err := New(f.p).Run(context.Background(), f.h, f.queries, baseConfig())
	require.NoError(t, err)
	assertInvariant(t, out)
	assert.Equal(t, 20, out.Failed)
	assert.Empty(t, out.Results)
}

func TestRunTooManyResultsIsFailure(t *testing.T) {
	f := newFixture(t, 10)
	f.p.ExtraResults = 1

	var errs []error
	e := New(f.p, WithObserver(func(_ time.Duration, err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}))

	cfg := baseConfig()
	cfg.Concurrency = 1
	out, err := e.Run(context.Background(), f.h, f.queries, cfg)
	require.NoError(t, err)
	assert.Equal(t, 10, out.Failed)
	require.Len(t, errs, 10)
	assert.ErrorIs(t, errs[0], ErrTooManyResults)
	var qe *provider.QueryError
	assert.ErrorAs(t, errs[0], &qe)
}

func TestRunWarmup(t *testing.T) {
	tests := []struct {
		name          string
		prefix        int
		passes        int
		wantExecuted  int
		wantProviderN int64
	}{
		{"disabled", 0, 3, 0, 30},
		{"prefix", 10, 2, 20, 50},
		{"all", AllQueries, 1, 30, 60},
		{"prefix larger than set", 100, 1, 30, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 30)
			cfg := baseConfig()
			cfg.WarmupQueries = tt.prefix
			cfg.WarmupPasses = tt.passes

			out, err := New(f.p).Run(context.Background(), f.h, f.queries, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantExecuted, out.WarmupQueries)
			assert.Equal(t, tt.wantProviderN, f.p.Queries())
			assert.Equal(t, 30, out.Dispatched)
		})
	}
}

func TestRunWarmupFailuresAreNotMeasured(t *testing.T) {
	f := newFixture(t, 20)
	f.p.FailQuery = func(call int64) bool { return call <= 5 }

	cfg := baseConfig()
	cfg.WarmupQueries = 5
	cfg.WarmupPasses = 1
	cfg.FailureThreshold = 0

	out, err := New(f.p).Run(context.Background(), f.h, f.queries, cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, out.WarmupFailures)
	assert.Zero(t, out.Failed)
	assert.Len(t, out.Results, 20)
}

func TestRunCancellationIsCooperative(t *testing.T) {
	f := newFixture(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	f.p.OnQuery = func(qctx context.Context, _ []float32) {
		if calls.Add(1) == 10 {
			cancel()
		}
		// In-flight queries never observe the caller's cancellation.
		assert.NoError(t, qctx.Err())
	}

	cfg := baseConfig()
	cfg.Concurrency = 1
	out, err := New(f.p).Run(ctx, f.h, f.queries, cfg)
	require.NoError(t, err)
	assertInvariant(t, out)

	assert.True(t, out.Partial)
	assert.Equal(t, 10, out.Dispatched)
	assert.Len(t, out.Results, 10)
	assert.Zero(t, out.Failed)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	f := newFixture(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := baseConfig()
	cfg.WarmupQueries = AllQueries
	cfg.WarmupPasses = 1
	out, err := New(f.p).Run(ctx, f.h, f.queries, cfg)
	require.NoError(t, err)
	assert.True(t, out.Partial)
	assert.Zero(t, out.Dispatched)
	assert.Zero(t, f.p.Queries())
}

func TestRunTargetQPS(t *testing.T) {
	f := newFixture(t, 20)

	cfg := baseConfig()
	cfg.TargetQPS = 200
	out, err := New(f.p).Run(context.Background(), f.h, f.queries, cfg)
	require.NoError(t, err)
	assert.Equal(t, 20, out.Dispatched)
	// 19 intervals of 5ms after the initial token.
	assert.GreaterOrEqual(t, out.Elapsed, 80*time.Millisecond)
}

func TestRunTargetQPSStopsAtDeadline(t *testing.T) {
	f := newFixture(t, 20)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	cfg := baseConfig()
	cfg.TargetQPS = 5
	out, err := New(f.p).Run(ctx, f.h, f.queries, cfg)
	require.NoError(t, err)

	// Dispatch ends with the deadline, not at the last slot fitting before it.
	assert.True(t, out.Partial)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	assert.Less(t, out.Dispatched, 20)
	assert.Equal(t, out.Dispatched, len(out.Results)+out.Failed)
}

func TestPaceReportsFalseOnlyWhenDone(t *testing.T) {
	l := rate.NewLimiter(rate.Limit(10), 1)
	require.True(t, pace(context.Background(), l))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// The next slot is 100ms away, beyond the deadline.
	assert.False(t, pace(ctx, l))
	assert.Error(t, ctx.Err())

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	assert.False(t, pace(cancelled, rate.NewLimiter(rate.Inf, 1)))
}

func TestConfigValidate(t *testing.T) {
	valid := baseConfig()
	require.NoError(t, valid.Validate())

	mutations := map[string]func(*Config){
		"concurrency": func(c *Config) { c.Concurrency = 0 },
		"k":           func(c *Config) { c.K = 0 },
		"warmup":      func(c *Config) { c.WarmupQueries = -2 },
		"passes":      func(c *Config) { c.WarmupPasses = -1 },
		"threshold":   func(c *Config) { c.FailureThreshold = -2 },
		"qps":         func(c *Config) { c.TargetQPS = -1 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			c := baseConfig()
			mutate(&c)
			err := c.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)

			_, err = New(nil).Run(context.Background(), nil, nil, c)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}
