package vecbench

import (
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecbench/report"
	"github.com/hupe1980/vecbench/resource"
)

type options struct {
	logger           *Logger
	sampler          resource.Sampler
	sampleInterval   time.Duration
	sink             report.Sink
	metricsCollector MetricsCollector
	controller       *resource.Controller
	sessionID        string
	now              func() time.Time
	newID            func() string
}

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		sampleInterval:   resource.DefaultSampleInterval,
		sink:             report.DiscardSink{},
		metricsCollector: NoopMetricsCollector{},
		now:              time.Now,
		newID:            uuid.NewString,
	}
}

// Option configures a Runner.
type Option func(*options)

// WithLogger configures the logger. Pass nil to disable logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithSampler configures the resource sampler used during builds.
// Without a sampler the usage fields of every record are empty.
//
// Example:
//
//	runner := vecbench.New(p, vecbench.WithSampler(resource.NewRusageSampler()))
func WithSampler(s resource.Sampler) Option {
	return func(o *options) {
		o.sampler = s
	}
}

// WithSampleInterval sets the period between resource samples during a build.
func WithSampleInterval(d time.Duration) Option {
	return func(o *options) {
		o.sampleInterval = d
	}
}

// WithSink configures where finalized records are written.
// The runner never closes the sink; the caller owns it.
func WithSink(s report.Sink) Option {
	return func(o *options) {
		if s == nil {
			s = report.DiscardSink{}
		}
		o.sink = s
	}
}

// WithMetricsCollector configures a metrics collector for monitoring sessions.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecbench.BasicMetricsCollector{}
//	runner := vecbench.New(p, vecbench.WithMetricsCollector(metrics))
//	// ... run ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithController configures the resource controller gating parallel builds.
// When BuildParallelism > 1 and no controller is set, an unlimited one
// allowing BuildParallelism concurrent builds is used.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithSessionID fixes the session id. By default every Run uses a new UUID.
func WithSessionID(id string) Option {
	return func(o *options) {
		o.sessionID = id
	}
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now == nil {
			now = time.Now
		}
		o.now = now
	}
}
