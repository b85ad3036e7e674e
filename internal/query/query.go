// Package query executes a query workload against a single index handle.
//
// A run has two phases separated by a barrier. The warm-up phase replays a
// prefix of the queries without timing anything. The measured phase then
// dispatches every query exactly once: Concurrency workers pull the next
// query id from a shared counter, time each call individually and write the
// outcome into a slot reserved for that query id.
//
// Cancellation is cooperative. The caller's context is checked between
// dispatches only; a query that has started always runs to completion.
package query

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/vecbench/provider"
)

const (
	// AllQueries selects the whole query set for warm-up.
	AllQueries = -1

	// NoFailureLimit disables the failure threshold.
	NoFailureLimit = -1
)

var (
	// ErrWorkloadAborted is matched by errors.Is on every *AbortError.
	ErrWorkloadAborted = errors.New("workload aborted")

	// ErrTooManyResults marks a provider that returned more than k neighbors.
	ErrTooManyResults = errors.New("provider returned more than k neighbors")

	// ErrInvalidConfig is returned for an invalid Config.
	ErrInvalidConfig = errors.New("invalid query config")
)

// Config describes one workload run.
type Config struct {
	// Concurrency is the number of workers, >= 1.
	Concurrency int

	// K is the number of neighbors requested per query, >= 1.
	K int

	// Search holds the provider search parameters.
	Search provider.Params

	// WarmupQueries is the length of the query prefix replayed during warm-up.
	// AllQueries replays every query, 0 disables warm-up.
	WarmupQueries int

	// WarmupPasses is how often the warm-up prefix is replayed.
	WarmupPasses int

	// FailureThreshold aborts the run once more than this many measured
	// queries have failed. NoFailureLimit disables it.
	FailureThreshold int

	// TargetQPS paces dispatch across all workers when > 0.
	TargetQPS float64
}

// Validate checks c.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be >= 1, got %d", ErrInvalidConfig, c.Concurrency)
	case c.K < 1:
		return fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidConfig, c.K)
	case c.WarmupQueries < AllQueries:
		return fmt.Errorf("%w: warm-up queries must be >= %d, got %d", ErrInvalidConfig, AllQueries, c.WarmupQueries)
	case c.WarmupPasses < 0:
		return fmt.Errorf("%w: warm-up passes must be >= 0, got %d", ErrInvalidConfig, c.WarmupPasses)
	case c.FailureThreshold < NoFailureLimit:
		return fmt.Errorf("%w: failure threshold must be >= %d, got %d", ErrInvalidConfig, NoFailureLimit, c.FailureThreshold)
	case c.TargetQPS < 0:
		return fmt.Errorf("%w: target qps must be >= 0, got %g", ErrInvalidConfig, c.TargetQPS)
	}
	return nil
}

// Result is the outcome of one completed measured query.
type Result struct {
	QueryID     int
	NeighborIDs []uint32
	Latency     time.Duration
}

// Outcome is the result of a workload run.
//
// len(Results) + Failed == Dispatched always holds.
type Outcome struct {
	// Results holds the completed queries sorted by query id.
	Results []Result

	// Dispatched is the number of measured queries that were started.
	Dispatched int

	// Failed is the number of dispatched queries that failed.
	Failed int

	// Elapsed is the wall-clock duration of the measured phase.
	Elapsed time.Duration

	// Partial is set when cancellation stopped dispatch early.
	Partial bool

	// WarmupQueries is the number of warm-up executions.
	WarmupQueries int

	// WarmupFailures is the number of failed warm-up executions.
	WarmupFailures int
}

// Latencies returns the latency of every completed query in query id order.
func (o *Outcome) Latencies() []time.Duration {
	out := make([]time.Duration, len(o.Results))
	for i, r := range o.Results {
		out[i] = r.Latency
	}
	return out
}

// AbortError reports that the failure threshold was exceeded.
//
// The last query failure can be accessed via errors.Unwrap.
type AbortError struct {
	Failed    int
	Threshold int
	Err       error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("workload aborted: %d query failures exceed threshold %d: %v", e.Failed, e.Threshold, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// Is reports whether target is ErrWorkloadAborted.
func (e *AbortError) Is(target error) bool { return target == ErrWorkloadAborted }
