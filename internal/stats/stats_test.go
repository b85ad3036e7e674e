package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/vecbench/report"
)

func TestSummarize(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		// Reverse order to exercise sorting.
		samples[i] = time.Duration(100-i) * time.Millisecond
	}

	l := Summarize(samples)
	assert.Equal(t, 50500*time.Microsecond, l.Mean)
	assert.Equal(t, 50*time.Millisecond, l.P50)
	assert.Equal(t, 90*time.Millisecond, l.P90)
	assert.Equal(t, 99*time.Millisecond, l.P99)
	assert.Equal(t, 100*time.Millisecond, l.Max)

	// The input is not reordered.
	assert.Equal(t, 100*time.Millisecond, samples[0])
}

func TestSummarizeSmall(t *testing.T) {
	assert.Equal(t, Latency{}, Summarize(nil))

	l := Summarize([]time.Duration{time.Second})
	assert.Equal(t, Latency{Mean: time.Second, P50: time.Second, P90: time.Second, P99: time.Second, Max: time.Second}, l)
}

func TestThroughput(t *testing.T) {
	assert.InDelta(t, 50.0, Throughput(100, 2*time.Second), 1e-9)
	assert.Zero(t, Throughput(0, time.Second))
	assert.Zero(t, Throughput(10, 0))
}

func TestLatencyConvertsToRecordLatency(t *testing.T) {
	l := Summarize([]time.Duration{time.Millisecond, 3 * time.Millisecond, 2 * time.Millisecond})
	r := report.Latency(l)
	assert.Equal(t, l.Mean, r.Mean)
	assert.Equal(t, l.P99, r.P99)
	assert.Equal(t, 3*time.Millisecond, r.Max)
}
