// Package stats summarizes latency samples.
package stats

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Latency is a summary of a latency distribution. Its layout matches
// report.Latency so summaries convert directly.
type Latency struct {
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P90  time.Duration `json:"p90"`
	P99  time.Duration `json:"p99"`
	Max  time.Duration `json:"max"`
}

// Summarize computes the summary over the full sample using empirical
// quantiles. An empty sample yields the zero Latency.
func Summarize(samples []time.Duration) Latency {
	if len(samples) == 0 {
		return Latency{}
	}

	xs := make([]float64, len(samples))
	for i, d := range samples {
		xs[i] = float64(d)
	}
	slices.Sort(xs)

	q := func(p float64) time.Duration {
		return time.Duration(stat.Quantile(p, stat.Empirical, xs, nil))
	}

	return Latency{
		Mean: time.Duration(stat.Mean(xs, nil)),
		P50:  q(0.50),
		P90:  q(0.90),
		P99:  q(0.99),
		Max:  time.Duration(xs[len(xs)-1]),
	}
}

// Throughput returns completed operations per second over elapsed.
func Throughput(completed int, elapsed time.Duration) float64 {
	if completed <= 0 || elapsed <= 0 {
		return 0
	}
	return float64(completed) / elapsed.Seconds()
}
