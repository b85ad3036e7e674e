package vecbench

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/vecbench/report"
)

// Logger wraps slog.Logger with benchmark-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithSession adds a session id field to the logger.
func (l *Logger) WithSession(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("session", id),
	}
}

// WithProvider adds a provider field to the logger.
func (l *Logger) WithProvider(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("provider", name),
	}
}

// LogBuild logs the outcome of a build or load.
func (l *Logger) LogBuild(ctx context.Context, params string, stats BuildStats, err error) {
	if err != nil {
		l.WarnContext(ctx, "index build failed",
			"build_params", params,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "index ready",
		"build_params", params,
		"loaded", stats.Loaded,
		"duration", stats.Duration,
		"size_bytes", stats.SizeBytes,
	)
}

// LogRun logs a finalized run record.
func (l *Logger) LogRun(ctx context.Context, r report.RunRecord) {
	args := []any{
		"build_params", r.BuildParams,
		"search_params", r.SearchParams,
		"concurrency", r.Concurrency,
		"qps", r.QPS,
		"recall", r.Recall,
		"p99", r.Latency.P99,
	}
	switch {
	case r.Partial:
		l.WarnContext(ctx, "run cancelled, recorded partial results",
			append(args, "dispatched", r.Dispatched)...)
	case r.Failed > 0:
		l.WarnContext(ctx, "run completed with failures",
			append(args, "failed", r.Failed, "completed", r.Completed)...)
	default:
		l.InfoContext(ctx, "run completed", args...)
	}
}

// LogAbort logs a run aborted by the failure threshold.
func (l *Logger) LogAbort(ctx context.Context, buildParams, searchParams string, concurrency int, err error) {
	l.ErrorContext(ctx, "run aborted",
		"build_params", buildParams,
		"search_params", searchParams,
		"concurrency", concurrency,
		"error", err,
	)
}

// LogSamplingFailure logs that resource usage is unavailable for a build.
func (l *Logger) LogSamplingFailure(ctx context.Context, buildParams string, err error) {
	l.WarnContext(ctx, "resource sampling failed, usage omitted",
		"build_params", buildParams,
		"error", err,
	)
}
