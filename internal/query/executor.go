package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/vecbench/provider"
)

// Observer is notified of every measured query.
type Observer func(latency time.Duration, err error)

// Executor runs workloads against handles of one provider.
type Executor struct {
	p        provider.Provider
	logger   *slog.Logger
	observer Observer
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithObserver sets the measured-query observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// New creates an executor for p.
func New(p provider.Provider, opts ...Option) *Executor {
	e := &Executor{
		p:      p,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type slot struct {
	done    bool
	ids     []uint32
	latency time.Duration
}

// Run executes the warm-up and measured phases for queries against h.
//
// The returned Outcome is non-nil whenever the config is valid, including
// on abort. Run returns an *AbortError when the failure threshold is
// exceeded. Cancellation of ctx is not an error: dispatch stops, in-flight
// queries finish and the outcome is marked Partial.
func (e *Executor) Run(ctx context.Context, h provider.Handle, queries [][]float32, cfg Config) (*Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	out := &Outcome{}
	e.warmup(ctx, h, queries, cfg, out)
	if ctx.Err() != nil {
		out.Partial = len(queries) > 0
		return out, nil
	}

	return e.measure(ctx, h, queries, cfg, out)
}

func (e *Executor) warmup(ctx context.Context, h provider.Handle, queries [][]float32, cfg Config, out *Outcome) {
	prefix := cfg.WarmupQueries
	if prefix == AllQueries || prefix > len(queries) {
		prefix = len(queries)
	}
	total := int64(prefix * cfg.WarmupPasses)
	if total == 0 {
		return
	}

	qctx := context.WithoutCancel(ctx)
	var next, executed, failed atomic.Int64

	var g errgroup.Group
	for range cfg.Concurrency {
		g.Go(func() error {
			for ctx.Err() == nil {
				i := next.Add(1) - 1
				if i >= total {
					return nil
				}
				executed.Add(1)
				res, err := e.p.Query(qctx, h, queries[i%int64(prefix)], cfg.Search, cfg.K)
				if err == nil && len(res) > cfg.K {
					err = ErrTooManyResults
				}
				if err != nil {
					failed.Add(1)
				}
			}
			return nil
		})
	}
	// Barrier: no measured query starts before every warm-up query returned.
	_ = g.Wait()

	out.WarmupQueries = int(executed.Load())
	out.WarmupFailures = int(failed.Load())
	if out.WarmupFailures > 0 {
		e.logger.Debug("warm-up queries failed", "failed", out.WarmupFailures, "executed", out.WarmupQueries)
	}
}

func (e *Executor) measure(ctx context.Context, h provider.Handle, queries [][]float32, cfg Config, out *Outcome) (*Outcome, error) {
	n := int64(len(queries))
	slots := make([]slot, n)
	qctx := context.WithoutCancel(ctx)

	var limiter *rate.Limiter
	if cfg.TargetQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.TargetQPS), 1)
	}

	var (
		next, dispatched, failed atomic.Int64
		aborted                  atomic.Bool
		lastErrMu                sync.Mutex
		lastErr                  error
	)

	start := time.Now()

	var g errgroup.Group
	for range cfg.Concurrency {
		g.Go(func() error {
			for {
				if aborted.Load() || ctx.Err() != nil {
					return nil
				}
				if limiter != nil && !pace(ctx, limiter) {
					return nil
				}
				i := next.Add(1) - 1
				if i >= n {
					return nil
				}
				dispatched.Add(1)

				t0 := time.Now()
				res, err := e.p.Query(qctx, h, queries[i], cfg.Search, cfg.K)
				latency := time.Since(t0)

				if err == nil && len(res) > cfg.K {
					err = provider.AsQueryError(e.p.Name(), fmt.Errorf("%w: got %d, k=%d", ErrTooManyResults, len(res), cfg.K))
				}
				if e.observer != nil {
					e.observer(latency, err)
				}

				if err != nil {
					err = provider.AsQueryError(e.p.Name(), err)
					lastErrMu.Lock()
					lastErr = err
					lastErrMu.Unlock()

					f := failed.Add(1)
					e.logger.Debug("query failed", "query_id", i, "error", err)
					if cfg.FailureThreshold != NoFailureLimit && f > int64(cfg.FailureThreshold) {
						aborted.Store(true)
					}
					continue
				}

				ids := make([]uint32, len(res))
				for j, nb := range res {
					ids[j] = nb.ID
				}
				slots[i] = slot{done: true, ids: ids, latency: latency}
			}
		})
	}
	_ = g.Wait()

	out.Elapsed = time.Since(start)
	out.Dispatched = int(dispatched.Load())
	out.Failed = int(failed.Load())
	out.Results = make([]Result, 0, out.Dispatched-out.Failed)
	for i, s := range slots {
		if s.done {
			out.Results = append(out.Results, Result{QueryID: i, NeighborIDs: s.ids, Latency: s.latency})
		}
	}

	if aborted.Load() {
		lastErrMu.Lock()
		defer lastErrMu.Unlock()
		return out, &AbortError{Failed: out.Failed, Threshold: cfg.FailureThreshold, Err: lastErr}
	}

	out.Partial = int64(out.Dispatched) < n
	return out, nil
}

// pace waits for the next dispatch slot of l. It reports false only when ctx
// is done before the slot arrives, so a deadline ends dispatch at the
// deadline rather than at the last slot that fits before it.
func pace(ctx context.Context, l *rate.Limiter) bool {
	r := l.Reserve()
	d := r.Delay()
	if d == 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		r.Cancel()
		return false
	}
}
