package vecbench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/vecbench/dataset"
	"github.com/hupe1980/vecbench/internal/build"
	"github.com/hupe1980/vecbench/internal/query"
	"github.com/hupe1980/vecbench/internal/recall"
	"github.com/hupe1980/vecbench/internal/stats"
	"github.com/hupe1980/vecbench/provider"
	"github.com/hupe1980/vecbench/report"
	"github.com/hupe1980/vecbench/resource"
)

// BuildStats describes how an index was obtained.
type BuildStats struct {
	Duration  time.Duration
	SizeBytes int64
	Loaded    bool
	Phases    []provider.Phase
	Usage     *resource.Usage
}

// Summary is the result of a benchmark session.
type Summary struct {
	SessionID    string
	Records      []report.RunRecord
	FailedBuilds []BuildFailure
}

// Runner runs benchmark sessions for one provider.
// A Runner is safe for sequential reuse; sessions must not overlap.
type Runner struct {
	p    provider.Provider
	opts options
}

// New creates a Runner for p.
func New(p provider.Provider, optFns ...Option) *Runner {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Runner{p: p, opts: opts}
}

// session is the state of one Run.
type session struct {
	*Runner
	id        string
	ds        *dataset.Dataset
	sweep     Sweep
	logger    *Logger
	evaluator *recall.Evaluator
	executor  *query.Executor
	agg       *report.Aggregator
}

// Run benchmarks every combination of sweep against ds.
//
// The returned Summary is non-nil whenever validation passed and holds every
// record finalized before Run returned. Run returns an error matching
// ErrWorkloadAborted when a run exceeds the failure threshold, and ctx.Err()
// when the session was cancelled; in both cases previously finalized
// records are valid and have been written to the sink.
func (r *Runner) Run(ctx context.Context, ds *dataset.Dataset, sweep Sweep) (*Summary, error) {
	if ds == nil {
		return nil, fmt.Errorf("%w: nil dataset", ErrInvalidDataset)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if err := sweep.Validate(r.p); err != nil {
		return nil, err
	}
	sweep = sweep.withDefaults()

	id := r.opts.sessionID
	if id == "" {
		id = r.opts.newID()
	}

	evaluator, err := recall.New(ds.GroundTruth, sweep.K)
	if err != nil {
		return nil, err
	}

	logger := r.opts.logger.WithSession(id).WithProvider(r.p.Name())
	s := &session{
		Runner:    r,
		id:        id,
		ds:        ds,
		sweep:     sweep,
		logger:    logger,
		evaluator: evaluator,
		executor: query.New(r.p,
			query.WithLogger(logger.Logger),
			query.WithObserver(r.opts.metricsCollector.RecordQuery),
		),
		agg: report.NewAggregator(report.NopCloser(r.opts.sink)),
	}
	defer s.agg.Close()

	logger.InfoContext(ctx, "benchmark session started",
		"dataset", ds.Name,
		"base", ds.Len(),
		"queries", ds.NumQueries(),
		"combinations", sweep.Combinations(),
	)

	failures, err := s.orchestrator().Run(ctx, ds.Base, ds.Metric, s.specs(), s.measure)

	summary := &Summary{SessionID: id, Records: s.agg.Records()}
	for _, f := range failures {
		r.opts.metricsCollector.RecordBuild(0, f.Err)
		logger.LogBuild(ctx, f.Spec.Params.String(), BuildStats{}, f.Err)
		summary.FailedBuilds = append(summary.FailedBuilds, BuildFailure{
			Params:   f.Spec.Params,
			LoadPath: f.Spec.LoadPath,
			Err:      f.Err,
		})
	}

	logger.InfoContext(ctx, "benchmark session finished",
		"records", len(summary.Records),
		"failed_builds", len(summary.FailedBuilds),
		"error", err,
	)
	return summary, err
}

// controller returns the controller gating parallel builds. Without one from
// WithController, parallel sweeps get a controller whose memory limit fits
// exactly BuildParallelism budgets.
func (s *session) controller() *resource.Controller {
	if c := s.opts.controller; c != nil {
		cfg := c.Config()
		need := int64(s.sweep.BuildParallelism) * s.sweep.BuildMemoryBudget
		if s.sweep.BuildParallelism > 1 && cfg.MemoryLimitBytes > 0 && cfg.MemoryLimitBytes < need {
			s.logger.Warn("memory limit below the parallel build budget, builds will queue",
				"memory_limit", cfg.MemoryLimitBytes,
				"budget", need)
		}
		return c
	}
	if s.sweep.BuildParallelism <= 1 {
		return nil
	}
	return resource.NewController(resource.Config{
		MemoryLimitBytes:    int64(s.sweep.BuildParallelism) * s.sweep.BuildMemoryBudget,
		MaxConcurrentBuilds: int64(s.sweep.BuildParallelism),
	})
}

func (s *session) orchestrator() *build.Orchestrator {
	controller := s.controller()

	var monitor *resource.Monitor
	if s.opts.sampler != nil {
		monitor = resource.NewMonitor(s.opts.sampler, s.opts.sampleInterval)
	}

	return build.New(s.p,
		build.WithLogger(s.logger.Logger),
		build.WithMonitor(monitor),
		build.WithController(controller),
		build.WithConfig(build.Config{
			Parallelism:  s.sweep.BuildParallelism,
			MemoryBudget: s.sweep.BuildMemoryBudget,
		}),
	)
}

func (s *session) specs() []build.Spec {
	specs := make([]build.Spec, len(s.sweep.Builds))
	for i, b := range s.sweep.Builds {
		specs[i] = build.Spec{
			Index:    i,
			Params:   b.Params,
			LoadPath: b.LoadPath,
			SavePath: b.SavePath,
		}
	}
	return specs
}

// measure runs every search and concurrency combination against one index.
func (s *session) measure(ctx context.Context, b build.Built) error {
	buildStats := BuildStats{
		Duration:  b.Stats.Duration,
		SizeBytes: b.Stats.SizeBytes,
		Loaded:    b.Stats.Loaded,
		Phases:    b.Stats.Phases,
		Usage:     b.Stats.Usage,
	}
	s.opts.metricsCollector.RecordBuild(b.Stats.Duration, nil)
	s.logger.LogBuild(ctx, b.Spec.Params.String(), buildStats, nil)
	if b.Stats.SamplingErr != nil {
		s.logger.LogSamplingFailure(ctx, b.Spec.Params.String(), b.Stats.SamplingErr)
	}

	for _, search := range s.sweep.Searches {
		for _, c := range s.sweep.Concurrency {
			if err := ctx.Err(); err != nil {
				return err
			}

			outcome, err := s.executor.Run(ctx, b.Handle, s.ds.Queries, s.sweep.queryConfig(search, c))
			if err != nil {
				if errors.Is(err, ErrWorkloadAborted) {
					s.opts.metricsCollector.RecordRun(0, 0, true)
					s.logger.LogAbort(ctx, b.Spec.Params.String(), search.String(), c, err)
				}
				return err
			}

			rec := s.record(b, buildStats, search, c, outcome)
			s.opts.metricsCollector.RecordRun(rec.QPS, rec.Recall, false)
			s.logger.LogRun(ctx, rec)

			// Finalize even when cancelled so partial results reach the sink.
			if err := s.agg.Finalize(context.WithoutCancel(ctx), rec); err != nil {
				return err
			}
			if outcome.Partial {
				return ctx.Err()
			}
		}
	}
	return nil
}

func (s *session) record(b build.Built, bs BuildStats, search provider.Params, concurrency int, o *query.Outcome) report.RunRecord {
	scored := make([]recall.Scored, len(o.Results))
	for i, res := range o.Results {
		scored[i] = recall.Scored{QueryID: res.QueryID, IDs: res.NeighborIDs}
	}
	meanRecall, _ := s.evaluator.Mean(scored)
	lat := stats.Summarize(o.Latencies())

	phases := make([]report.Phase, len(bs.Phases))
	for i, p := range bs.Phases {
		phases[i] = report.Phase{Name: p.Name, Duration: p.Duration}
	}

	return report.RunRecord{
		RunID:          s.opts.newID(),
		SessionID:      s.id,
		Timestamp:      s.opts.now(),
		Dataset:        s.ds.Name,
		Provider:       s.p.Name(),
		BuildParams:    b.Spec.Params.String(),
		SearchParams:   search.String(),
		Concurrency:    concurrency,
		K:              s.sweep.K,
		BuildTime:      bs.Duration,
		BuildPhases:    phases,
		Loaded:         bs.Loaded,
		IndexSizeBytes: bs.SizeBytes,
		BuildUsage:     bs.Usage,
		Dispatched:     o.Dispatched,
		Completed:      len(o.Results),
		Failed:         o.Failed,
		Partial:        o.Partial,
		WarmupQueries:  o.WarmupQueries,
		Elapsed:        o.Elapsed,
		QPS:            stats.Throughput(len(o.Results), o.Elapsed),
		Latency:        report.Latency(lat),
		Recall:         meanRecall,
	}
}
