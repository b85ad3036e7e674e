package vecbench

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecbench/dataset"
	"github.com/hupe1980/vecbench/distance"
	"github.com/hupe1980/vecbench/provider"
	"github.com/hupe1980/vecbench/provider/flat"
	"github.com/hupe1980/vecbench/provider/hnsw"
	"github.com/hupe1980/vecbench/report"
	"github.com/hupe1980/vecbench/resource"
	"github.com/hupe1980/vecbench/testutil"
)

// tinyDataset has 100 base and 10 query vectors with exact top-5 ground truth.
func tinyDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	rng := testutil.NewRNG(4711)
	base := rng.UniformVectors(100, 8)
	queries := rng.UniformVectors(10, 8)
	truth := testutil.ExactGroundTruth(base, queries, distance.SquaredL2, 5)

	ds, err := dataset.New("tiny", distance.MetricL2, base, queries, truth)
	require.NoError(t, err)
	return ds
}

func params(s string) provider.Params {
	return provider.MustParseParams(s)
}

func assertRecordInvariants(t *testing.T, records []report.RunRecord) {
	t.Helper()
	for _, r := range records {
		assert.GreaterOrEqual(t, r.Recall, 0.0)
		assert.LessOrEqual(t, r.Recall, 1.0)
		assert.Equal(t, r.Dispatched, r.Completed+r.Failed)
	}
}

func TestRunExactProviderPerfectRecall(t *testing.T) {
	ds := tinyDataset(t)
	runner := New(flat.New())

	summary, err := runner.Run(context.Background(), ds, Sweep{
		Builds:      []BuildSpec{{}},
		Concurrency: []int{1, 4},
		K:           5,
	})
	require.NoError(t, err)
	require.Len(t, summary.Records, 2)
	assert.Empty(t, summary.FailedBuilds)
	assertRecordInvariants(t, summary.Records)

	for i, r := range summary.Records {
		assert.Equal(t, 1.0, r.Recall)
		assert.Equal(t, 10, r.Completed)
		assert.Equal(t, 0, r.Failed)
		assert.False(t, r.Partial)
		assert.Equal(t, []int{1, 4}[i], r.Concurrency)
		assert.Equal(t, "flat", r.Provider)
		assert.Equal(t, "tiny", r.Dataset)
		assert.Equal(t, summary.SessionID, r.SessionID)
		assert.Positive(t, r.QPS)
		assert.Positive(t, r.IndexSizeBytes)
		assert.LessOrEqual(t, r.Latency.P50, r.Latency.P99)
		assert.LessOrEqual(t, r.Latency.P99, r.Latency.Max)
	}
}

func TestRunFailingBuildParams(t *testing.T) {
	ds := tinyDataset(t)
	p := testutil.NewFaultyProvider(hnsw.New())
	p.FailBuild = func(params provider.Params) bool {
		v, _ := params.Get("m")
		return v == "4"
	}

	summary, err := New(p).Run(context.Background(), ds, Sweep{
		Builds: []BuildSpec{
			{Params: params("m:4")},
			{Params: params("m:8")},
		},
		Searches: []provider.Params{params("ef:16"), params("ef:64")},
		K:        5,
	})
	require.NoError(t, err)

	require.Len(t, summary.FailedBuilds, 1)
	assert.Equal(t, "m:4", summary.FailedBuilds[0].Params.String())
	var be *BuildError
	require.True(t, errors.As(summary.FailedBuilds[0].Err, &be))
	assert.ErrorIs(t, be, testutil.ErrInjected)

	require.Len(t, summary.Records, 2)
	for _, r := range summary.Records {
		assert.Equal(t, "m:8", r.BuildParams)
		assert.Equal(t, 10, r.Completed)
	}
	assert.Equal(t, "ef:16", summary.Records[0].SearchParams)
	assert.Equal(t, "ef:64", summary.Records[1].SearchParams)
	assertRecordInvariants(t, summary.Records)
	assert.Equal(t, int64(1), p.Closes())
}

func TestRunAbortsAtThresholdZero(t *testing.T) {
	ds := tinyDataset(t)
	p := testutil.NewFaultyProvider(flat.New())
	p.FailQuery = func(int64) bool { return true }
	sink := report.NewMemorySink()

	summary, err := New(p, WithSink(sink)).Run(context.Background(), ds, Sweep{
		Builds:           []BuildSpec{{}},
		Concurrency:      []int{1, 2},
		K:                5,
		FailureThreshold: 0,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkloadAborted)

	var abort *AbortError
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, 1, abort.Failed)
	assert.Equal(t, 0, abort.Threshold)

	require.NotNil(t, summary)
	assert.Empty(t, summary.Records)
	assert.Empty(t, sink.Records())
	assert.Equal(t, p.Builds(), p.Closes())
}

func TestRunAbortKeepsEarlierRecords(t *testing.T) {
	ds := tinyDataset(t)
	p := testutil.NewFaultyProvider(flat.New())
	// The first run issues exactly ten queries.
	p.FailQuery = func(call int64) bool { return call > 10 }
	sink := report.NewMemorySink()

	summary, err := New(p, WithSink(sink)).Run(context.Background(), ds, Sweep{
		Builds:           []BuildSpec{{}},
		Concurrency:      []int{1, 2, 4},
		K:                5,
		FailureThreshold: 2,
	})
	require.ErrorIs(t, err, ErrWorkloadAborted)

	require.Len(t, summary.Records, 1)
	assert.Equal(t, 1, summary.Records[0].Concurrency)
	assert.Equal(t, 0, summary.Records[0].Failed)
	assert.Equal(t, summary.Records, sink.Records())
	assert.False(t, sink.Closed())
}

func TestRunToleratesFailuresBelowThreshold(t *testing.T) {
	ds := tinyDataset(t)
	p := testutil.NewFaultyProvider(flat.New())
	p.FailQuery = func(call int64) bool { return call%5 == 0 }

	summary, err := New(p).Run(context.Background(), ds, Sweep{
		Builds:           []BuildSpec{{}},
		K:                5,
		FailureThreshold: NoFailureLimit,
	})
	require.NoError(t, err)
	require.Len(t, summary.Records, 1)

	r := summary.Records[0]
	assert.Equal(t, 2, r.Failed)
	assert.Equal(t, 8, r.Completed)
	// Failed queries are excluded, not scored as zero.
	assert.Equal(t, 1.0, r.Recall)
}

func TestRunIdempotent(t *testing.T) {
	ds := tinyDataset(t)
	sweep := Sweep{
		Builds:      []BuildSpec{{Params: params("m:4-ef_construction:16-seed:7")}},
		Searches:    []provider.Params{params("ef:8")},
		Concurrency: []int{1, 8},
		K:           5,
	}

	runner := New(hnsw.New())
	first, err := runner.Run(context.Background(), ds, sweep)
	require.NoError(t, err)
	second, err := runner.Run(context.Background(), ds, sweep)
	require.NoError(t, err)

	require.Len(t, first.Records, 2)
	require.Len(t, second.Records, 2)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	for i := range first.Records {
		assert.InDelta(t, first.Records[i].Recall, second.Records[i].Recall, 1e-12)
		assert.NotEqual(t, first.Records[i].RunID, second.Records[i].RunID)
	}
}

func TestRunConcurrencyInvariance(t *testing.T) {
	ds := tinyDataset(t)

	summary, err := New(hnsw.New()).Run(context.Background(), ds, Sweep{
		Builds:      []BuildSpec{{Params: params("m:4")}},
		Searches:    []provider.Params{params("ef:4")},
		Concurrency: []int{1, 8},
		K:           5,
	})
	require.NoError(t, err)
	require.Len(t, summary.Records, 2)

	one, eight := summary.Records[0], summary.Records[1]
	assert.Equal(t, one.Completed, eight.Completed)
	assert.InDelta(t, one.Recall, eight.Recall, 1e-12)
}

func TestRunCancellationRecordsPartialRun(t *testing.T) {
	ds := tinyDataset(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := testutil.NewFaultyProvider(flat.New())
	var calls atomic.Int64
	p.OnQuery = func(context.Context, []float32) {
		if calls.Add(1) == 5 {
			cancel()
		}
	}
	sink := report.NewMemorySink()

	summary, err := New(p, WithSink(sink)).Run(ctx, ds, Sweep{
		Builds:      []BuildSpec{{}},
		Concurrency: []int{1, 2},
		K:           5,
	})
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, summary.Records, 1)
	r := summary.Records[0]
	assert.True(t, r.Partial)
	assert.Equal(t, 5, r.Dispatched)
	assert.Equal(t, 5, r.Completed)
	assert.Equal(t, 1.0, r.Recall)
	assert.Len(t, sink.Records(), 1)
	assert.Equal(t, p.Builds(), p.Closes())
}

func TestRunPacedDeadlineReportsCancellation(t *testing.T) {
	ds := tinyDataset(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	summary, err := New(flat.New()).Run(ctx, ds, Sweep{
		Builds:      []BuildSpec{{}},
		Concurrency: []int{1, 2},
		K:           5,
		TargetQPS:   5,
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Len(t, summary.Records, 1)
	r := summary.Records[0]
	assert.True(t, r.Partial)
	assert.Equal(t, 1, r.Concurrency)
	assert.Less(t, r.Dispatched, len(ds.Queries))
	assertRecordInvariants(t, summary.Records)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := testutil.NewFaultyProvider(flat.New())
	summary, err := New(p).Run(ctx, tinyDataset(t), Sweep{Builds: []BuildSpec{{}}, K: 5})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary.Records)
	assert.Zero(t, p.Queries())
}

func TestRunSinkMetricsAndClock(t *testing.T) {
	ds := tinyDataset(t)
	sink := report.NewMemorySink()
	metrics := &BasicMetricsCollector{}
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	summary, err := New(flat.New(),
		WithSink(sink),
		WithMetricsCollector(metrics),
		WithSessionID("session-42"),
		WithClock(func() time.Time { return now }),
		WithLogger(NoopLogger()),
	).Run(context.Background(), ds, Sweep{
		Builds:        []BuildSpec{{}},
		Concurrency:   []int{1, 2},
		K:             5,
		WarmupQueries: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, "session-42", summary.SessionID)
	assert.Equal(t, summary.Records, sink.Records())
	for _, r := range summary.Records {
		assert.Equal(t, "session-42", r.SessionID)
		assert.Equal(t, now, r.Timestamp)
		assert.Equal(t, 3, r.WarmupQueries)
		assert.NotEmpty(t, r.RunID)
	}

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.BuildCount)
	assert.Equal(t, int64(20), stats.QueryCount)
	assert.Equal(t, int64(0), stats.QueryErrors)
	assert.Equal(t, int64(2), stats.RunCount)
}

func TestRunResourceUsage(t *testing.T) {
	ds := tinyDataset(t)

	var mu sync.Mutex
	var n int64
	working := resource.SamplerFunc(func(context.Context) (resource.Snapshot, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return resource.Snapshot{RSSBytes: n * 1024, UserTime: time.Duration(n) * time.Millisecond}, nil
	})

	summary, err := New(flat.New(), WithSampler(working), WithSampleInterval(time.Millisecond)).
		Run(context.Background(), ds, Sweep{Builds: []BuildSpec{{}}, K: 5})
	require.NoError(t, err)
	require.Len(t, summary.Records, 1)
	require.NotNil(t, summary.Records[0].BuildUsage)
	assert.Positive(t, summary.Records[0].BuildUsage.PeakRSSBytes)

	failing := resource.SamplerFunc(func(context.Context) (resource.Snapshot, error) {
		return resource.Snapshot{}, resource.ErrUnsupported
	})
	summary, err = New(flat.New(), WithSampler(failing)).
		Run(context.Background(), ds, Sweep{Builds: []BuildSpec{{}}, K: 5})
	require.NoError(t, err)
	require.Len(t, summary.Records, 1)
	assert.Nil(t, summary.Records[0].BuildUsage)
	assert.Equal(t, 1.0, summary.Records[0].Recall)
}

func TestRunSaveThenLoad(t *testing.T) {
	ds := tinyDataset(t)
	path := filepath.Join(t.TempDir(), "flat.idx")
	runner := New(flat.New())

	summary, err := runner.Run(context.Background(), ds, Sweep{
		Builds: []BuildSpec{{SavePath: path}},
		K:      5,
	})
	require.NoError(t, err)
	require.Len(t, summary.Records, 1)
	assert.False(t, summary.Records[0].Loaded)

	summary, err = runner.Run(context.Background(), ds, Sweep{
		Builds: []BuildSpec{{LoadPath: path}, {LoadPath: path + ".missing"}},
		K:      5,
	})
	require.NoError(t, err)
	require.Len(t, summary.Records, 1)
	assert.True(t, summary.Records[0].Loaded)
	assert.Equal(t, 1.0, summary.Records[0].Recall)

	require.Len(t, summary.FailedBuilds, 1)
	var le *LoadError
	assert.True(t, errors.As(summary.FailedBuilds[0].Err, &le))
}

func TestRunParallelBuildsKeepSweepOrder(t *testing.T) {
	ds := tinyDataset(t)

	summary, err := New(hnsw.New()).Run(context.Background(), ds, Sweep{
		Builds: []BuildSpec{
			{Params: params("m:4")},
			{Params: params("m:6")},
			{Params: params("m:8")},
		},
		K:                 5,
		BuildParallelism:  2,
		BuildMemoryBudget: 1 << 20,
	})
	require.NoError(t, err)
	require.Len(t, summary.Records, 3)
	for i, want := range []string{"m:4", "m:6", "m:8"} {
		assert.Equal(t, want, summary.Records[i].BuildParams)
	}
}

func TestSessionControllerEnforcesBuildBudget(t *testing.T) {
	s := &session{
		Runner: New(flat.New()),
		logger: NoopLogger(),
		sweep:  Sweep{BuildParallelism: 3, BuildMemoryBudget: 100},
	}

	c := s.controller()
	require.NotNil(t, c)
	assert.Equal(t, int64(300), c.Config().MemoryLimitBytes)
	assert.Equal(t, int64(3), c.Config().MaxConcurrentBuilds)

	for range 3 {
		require.NoError(t, c.AcquireMemory(context.Background(), 100))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireMemory(ctx, 100), context.DeadlineExceeded)

	s.sweep.BuildParallelism = 1
	assert.Nil(t, s.controller())

	own := resource.NewController(resource.Config{MemoryLimitBytes: 50, MaxConcurrentBuilds: 3})
	s.Runner = New(flat.New(), WithController(own))
	s.sweep.BuildParallelism = 3
	assert.Same(t, own, s.controller())
}

func TestRunRejectsInvalidInput(t *testing.T) {
	ds := tinyDataset(t)
	p := testutil.NewFaultyProvider(flat.New())
	runner := New(p)

	_, err := runner.Run(context.Background(), nil, Sweep{Builds: []BuildSpec{{}}, K: 5})
	assert.ErrorIs(t, err, ErrInvalidDataset)

	_, err = runner.Run(context.Background(), ds, Sweep{Builds: []BuildSpec{{}}, K: 0})
	assert.ErrorIs(t, err, ErrInvalidSweep)

	_, err = runner.Run(context.Background(), ds, Sweep{
		Builds:   []BuildSpec{{}},
		Searches: []provider.Params{params("ef:10")},
		K:        5,
	})
	assert.ErrorIs(t, err, ErrInvalidSweep)
	assert.ErrorIs(t, err, ErrInvalidParams)

	assert.Zero(t, p.Builds())
}
