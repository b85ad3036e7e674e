package resource

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnsupported is returned by samplers on platforms without resource counters.
var ErrUnsupported = errors.New("resource sampling not supported on this platform")

// Snapshot is a point-in-time reading of process counters.
type Snapshot struct {
	// RSSBytes is the current resident set size.
	RSSBytes int64
	// MaxRSSBytes is the peak resident set size since process start.
	MaxRSSBytes int64

	UserTime    time.Duration
	SystemTime  time.Duration
	MinorFaults int64
	MajorFaults int64
}

// Sampler reads process resource counters.
type Sampler interface {
	Sample(ctx context.Context) (Snapshot, error)
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(ctx context.Context) (Snapshot, error)

// Sample implements Sampler.
func (f SamplerFunc) Sample(ctx context.Context) (Snapshot, error) { return f(ctx) }

// Usage summarizes the resources consumed between Monitor.Start and Stop.
type Usage struct {
	PeakRSSBytes int64         `json:"peak_rss_bytes"`
	UserTime     time.Duration `json:"user_time"`
	SystemTime   time.Duration `json:"system_time"`
	MinorFaults  int64         `json:"minor_faults"`
	MajorFaults  int64         `json:"major_faults"`
	Samples      int           `json:"samples"`
}

// CPUTime returns the combined user and system time.
func (u *Usage) CPUTime() time.Duration {
	if u == nil {
		return 0
	}
	return u.UserTime + u.SystemTime
}

// SamplingError reports that resource counters could not be read.
// It is never fatal to a benchmark.
//
// The original underlying error can be accessed via errors.Unwrap.
type SamplingError struct {
	Err error
}

func (e *SamplingError) Error() string {
	return fmt.Sprintf("resource sampling failed: %v", e.Err)
}

func (e *SamplingError) Unwrap() error { return e.Err }
