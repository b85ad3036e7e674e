// Command annbench benchmarks approximate nearest-neighbor index providers.
//
// Usage:
//
//	annbench --config bench.yaml
//	ANNBENCH_PROVIDER=flat annbench --csv runs.csv
//
// Exit codes: 0 success, 1 error, 2 workload aborted, 3 regression
// against the baseline.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/hupe1980/vecbench"
	"github.com/hupe1980/vecbench/config"
	"github.com/hupe1980/vecbench/dataset"
	"github.com/hupe1980/vecbench/provider"
	"github.com/hupe1980/vecbench/provider/flat"
	"github.com/hupe1980/vecbench/provider/hnsw"
	"github.com/hupe1980/vecbench/report"
	"github.com/hupe1980/vecbench/resource"
)

const (
	exitError      = 1
	exitAborted    = 2
	exitRegression = 3
)

var errRegression = errors.New("regression against baseline")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "annbench: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, errRegression):
		return exitRegression
	case errors.Is(err, vecbench.ErrWorkloadAborted):
		return exitAborted
	default:
		return exitError
	}
}

func newRegistry() *provider.Registry {
	r := provider.NewRegistry()
	_ = r.Register(flat.Name, func() provider.Provider { return flat.New() })
	_ = r.Register(hnsw.Name, func() provider.Provider { return hnsw.New() })
	return r
}

func newLogger(cfg config.LogConfig) (*vecbench.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("%w: log level: %w", config.ErrInvalidConfig, err)
	}
	switch cfg.Format {
	case "text":
		return vecbench.NewTextLogger(level), nil
	case "json":
		return vecbench.NewJSONLogger(level), nil
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", config.ErrInvalidConfig, cfg.Format)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) (err error) {
	cfg, v, err := loadConfig(args)
	if err != nil {
		return err
	}

	registry := newRegistry()
	if v.GetBool("list_providers") {
		for _, name := range registry.Names() {
			fmt.Fprintln(stdout, name)
		}
		return nil
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	p, err := registry.Get(cfg.Provider)
	if err != nil {
		return err
	}
	sweep, err := cfg.ToSweep()
	if err != nil {
		return err
	}
	dsOpts, err := cfg.SyntheticOptions()
	if err != nil {
		return err
	}
	interval, err := cfg.SampleInterval()
	if err != nil {
		return err
	}

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:    cfg.Resources.MemoryLimitBytes,
		MaxConcurrentBuilds: int64(max(sweep.BuildParallelism, 1)),
		IOLimitBytesPerSec:  cfg.Resources.IOLimitBytesPerSec,
	})
	if sweep.BuildMemoryBudget == 0 && cfg.Resources.MemoryLimitBytes > 0 {
		sweep.BuildMemoryBudget = cfg.Resources.MemoryLimitBytes / int64(max(sweep.BuildParallelism, 1))
	}

	store, err := openBlobStore(ctx, cfg.Report.Blob)
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	sink, err := openSinks(ctx, cfg, store, sessionID, rc)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close report sinks: %w", cerr))
		}
	}()

	logger.Info("generating dataset", "name", cfg.Dataset.Name, "dimension", cfg.Dataset.Dimension,
		"base", cfg.Dataset.Base, "queries", cfg.Dataset.Queries)
	ds, err := dataset.Synthetic(ctx, dsOpts)
	if err != nil {
		return err
	}

	opts := []vecbench.Option{
		vecbench.WithLogger(logger),
		vecbench.WithSink(sink),
		vecbench.WithController(rc),
		vecbench.WithSessionID(sessionID),
	}
	if cfg.Resources.Sample {
		opts = append(opts,
			vecbench.WithSampler(resource.NewRusageSampler()),
			vecbench.WithSampleInterval(interval))
	}

	summary, runErr := vecbench.New(p, opts...).Run(ctx, ds, sweep)
	if summary != nil {
		for _, f := range summary.FailedBuilds {
			fmt.Fprintf(stdout, "build failed: %s: %v\n", f.Params, f.Err)
		}
		fmt.Fprintf(stdout, "session %s: %d runs\n", summary.SessionID, len(summary.Records))
	}
	if runErr != nil {
		return runErr
	}

	if cfg.Report.Baseline == "" {
		return nil
	}
	baseline, err := loadBaseline(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("failed to load baseline: %w", err)
	}
	cmp := report.Compare(baseline, summary.Records, cfg.Report.ThresholdPct)
	printComparison(stdout, cmp)
	if cmp.HasRegressions() {
		return errRegression
	}
	return nil
}

func printComparison(w io.Writer, cmp *report.ComparisonReport) {
	for _, c := range cmp.Comparisons {
		fmt.Fprintf(w, "%-10s %s qps %+.1f%% recall %+.2fpp\n", c.Status, c.Key, c.QPSChangePct, c.RecallChangePt)
	}
	for _, key := range cmp.Missing {
		fmt.Fprintf(w, "%-10s %s\n", "missing", key)
	}
}
