// Package build constructs (or loads) one index per build parameter set and
// lends each handle to a callback in sweep order.
//
// The orchestrator owns every handle it creates. A handle is closed as soon
// as the callback that received it returns, and on every early exit
// (callback error, cancellation) all handles not yet handed out are closed
// as well.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecbench/distance"
	"github.com/hupe1980/vecbench/provider"
	"github.com/hupe1980/vecbench/resource"
)

// ErrInvalidConfig is returned for an invalid orchestrator configuration.
var ErrInvalidConfig = errors.New("invalid build config")

// Spec describes one index to obtain.
type Spec struct {
	// Index is the position of the spec in the sweep.
	Index int

	// Params are the provider build parameters.
	Params provider.Params

	// LoadPath, when set, loads a persisted index instead of building.
	LoadPath string

	// SavePath, when set, persists a freshly built index if the provider supports it.
	SavePath string
}

// Stats describes how a handle was obtained.
type Stats struct {
	Duration  time.Duration
	Phases    []provider.Phase
	SizeBytes int64
	Loaded    bool
	Saved     bool

	// Usage is nil when sampling was disabled or failed.
	Usage *resource.Usage

	// SamplingErr is the *resource.SamplingError when sampling failed.
	SamplingErr error
}

// Built is a successfully obtained handle, lent to the callback.
type Built struct {
	Spec   Spec
	Handle provider.Handle
	Stats  Stats
}

// Failure is a build or load that failed. Sweeps continue past failures.
type Failure struct {
	Spec Spec
	Err  error
}

// Config controls build scheduling.
type Config struct {
	// Parallelism is the number of builds run concurrently. Defaults to 1.
	Parallelism int

	// MemoryBudget is reserved from the controller per concurrent build.
	// It is required when Parallelism > 1.
	MemoryBudget int64
}

// Validate checks c.
func (c Config) Validate() error {
	if c.Parallelism < 0 {
		return fmt.Errorf("%w: parallelism must be >= 0, got %d", ErrInvalidConfig, c.Parallelism)
	}
	if c.Parallelism > 1 && c.MemoryBudget <= 0 {
		return fmt.Errorf("%w: parallel builds need a positive memory budget", ErrInvalidConfig)
	}
	return nil
}

// Orchestrator builds indexes of one provider.
type Orchestrator struct {
	p          provider.Provider
	cfg        Config
	logger     *slog.Logger
	monitor    *resource.Monitor
	controller *resource.Controller
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMonitor sets the resource monitor wrapped around each build.
func WithMonitor(m *resource.Monitor) Option {
	return func(o *Orchestrator) { o.monitor = m }
}

// WithController sets the controller that gates parallel builds.
func WithController(c *resource.Controller) Option {
	return func(o *Orchestrator) { o.controller = c }
}

// WithConfig sets the scheduling configuration.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// New creates an orchestrator for p.
func New(p provider.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		p:      p,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg.Parallelism <= 0 {
		o.cfg.Parallelism = 1
	}
	return o
}

// attempt is the outcome of obtaining one handle.
type attempt struct {
	built Built
	err   error
}

func (a *attempt) close(p provider.Provider, logger *slog.Logger) {
	if a.built.Handle != nil {
		if err := p.Close(a.built.Handle); err != nil {
			logger.Warn("failed to close index", "build_params", a.built.Spec.Params.String(), "error", err)
		}
		a.built.Handle = nil
	}
}

// Run obtains an index for every spec and calls fn for each success in spec
// order. fn must not retain the handle. Failed builds and loads are returned
// as failures; Run itself only fails on an invalid config, cancellation
// of ctx, or an error returned by fn.
func (o *Orchestrator) Run(ctx context.Context, vectors [][]float32, metric distance.Metric, specs []Spec, fn func(context.Context, Built) error) ([]Failure, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	var failures []Failure
	for start := 0; start < len(specs); start += o.cfg.Parallelism {
		if err := ctx.Err(); err != nil {
			return failures, err
		}

		chunk := specs[start:min(start+o.cfg.Parallelism, len(specs))]
		attempts := o.obtain(ctx, vectors, metric, chunk)

		for i := range attempts {
			a := &attempts[i]
			if a.err == nil {
				err := fn(ctx, a.built)
				a.close(o.p, o.logger)
				if err != nil {
					closeAll(attempts[i+1:], o.p, o.logger)
					return failures, err
				}
				continue
			}

			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(a.err, ctxErr) {
				closeAll(attempts[i+1:], o.p, o.logger)
				return failures, ctxErr
			}
			o.logger.Warn("index build failed",
				"provider", o.p.Name(),
				"build_params", a.built.Spec.Params.String(),
				"error", a.err,
			)
			failures = append(failures, Failure{Spec: a.built.Spec, Err: a.err})
		}
	}
	return failures, nil
}

func closeAll(attempts []attempt, p provider.Provider, logger *slog.Logger) {
	for i := range attempts {
		attempts[i].close(p, logger)
	}
}

// obtain builds or loads every spec of a chunk, concurrently when the chunk
// holds more than one spec. Each concurrent build holds its memory budget
// from the controller while it runs.
func (o *Orchestrator) obtain(ctx context.Context, vectors [][]float32, metric distance.Metric, chunk []Spec) []attempt {
	attempts := make([]attempt, len(chunk))
	if len(chunk) == 1 {
		attempts[0] = o.one(ctx, vectors, metric, chunk[0])
		return attempts
	}

	var g errgroup.Group
	for i, spec := range chunk {
		g.Go(func() error {
			if err := o.controller.AcquireMemory(ctx, o.cfg.MemoryBudget); err != nil {
				attempts[i] = attempt{built: Built{Spec: spec}, err: err}
				return nil
			}
			if err := o.controller.AcquireBuild(ctx); err != nil {
				o.controller.ReleaseMemory(o.cfg.MemoryBudget)
				attempts[i] = attempt{built: Built{Spec: spec}, err: err}
				return nil
			}
			o.logger.Debug("parallel build started",
				"params", spec.Params.String(),
				"memory_reserved", o.controller.MemoryUsage(),
				"memory_limit", o.controller.Config().MemoryLimitBytes)

			attempts[i] = o.one(ctx, vectors, metric, spec)
			o.controller.ReleaseBuild()
			o.controller.ReleaseMemory(o.cfg.MemoryBudget)
			return nil
		})
	}
	_ = g.Wait()
	return attempts
}

func (o *Orchestrator) one(ctx context.Context, vectors [][]float32, metric distance.Metric, spec Spec) attempt {
	rec := o.monitor.Start(ctx)
	start := time.Now()

	var (
		h   provider.Handle
		err error
	)
	if spec.LoadPath != "" {
		h, err = o.p.Load(ctx, spec.LoadPath, spec.Params)
		err = provider.AsLoadError(o.p.Name(), spec.LoadPath, err)
	} else {
		h, err = o.p.Build(ctx, vectors, metric, spec.Params)
		err = provider.AsBuildError(o.p.Name(), spec.Params, err)
	}
	elapsed := time.Since(start)

	usage, samplingErr := rec.Stop(ctx)
	if samplingErr != nil {
		o.logger.Debug("resource sampling failed", "build_params", spec.Params.String(), "error", samplingErr)
	}

	if err != nil {
		return attempt{built: Built{Spec: spec}, err: err}
	}

	stats := Stats{
		Duration:    elapsed,
		SizeBytes:   h.SizeBytes(),
		Loaded:      spec.LoadPath != "",
		Usage:       usage,
		SamplingErr: samplingErr,
	}
	if pr, ok := h.(provider.PhaseReporter); ok {
		stats.Phases = pr.Phases()
	}

	if spec.SavePath != "" && !stats.Loaded {
		if s, ok := o.p.(provider.Saver); ok {
			if err := s.Save(ctx, h, spec.SavePath); err != nil {
				o.logger.Warn("failed to save index", "path", spec.SavePath, "error", err)
			} else {
				stats.Saved = true
			}
		} else {
			o.logger.Warn("provider cannot persist indexes", "provider", o.p.Name())
		}
	}

	return attempt{built: Built{Spec: spec, Handle: h, Stats: stats}}
}
