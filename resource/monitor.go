package resource

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultSampleInterval is the default period between samples.
const DefaultSampleInterval = 100 * time.Millisecond

// Monitor tracks resource usage around a unit of work.
// A nil sampler disables monitoring: Stop then returns (nil, nil).
type Monitor struct {
	sampler  Sampler
	interval time.Duration
}

// NewMonitor creates a monitor sampling every interval (DefaultSampleInterval when <= 0).
func NewMonitor(sampler Sampler, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Monitor{sampler: sampler, interval: interval}
}

// Recording is an in-progress measurement started by Monitor.Start.
type Recording struct {
	sampler Sampler
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	start   Snapshot
	peak    int64
	samples int
	errs    []error
}

// Start takes an initial sample and keeps sampling in the background until Stop.
func (m *Monitor) Start(ctx context.Context) *Recording {
	if m == nil || m.sampler == nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &Recording{
		sampler: m.sampler,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	if snap, err := m.sampler.Sample(ctx); err != nil {
		r.errs = append(r.errs, err)
	} else {
		r.start = snap
		r.observe(snap)
	}

	go r.loop(ctx, m.interval)
	return r
}

func (r *Recording) loop(ctx context.Context, interval time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := r.sampler.Sample(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.mu.Lock()
				r.errs = append(r.errs, err)
				r.mu.Unlock()
				continue
			}
			r.mu.Lock()
			r.observe(snap)
			r.mu.Unlock()
		}
	}
}

func (r *Recording) observe(s Snapshot) {
	r.peak = max(r.peak, s.RSSBytes)
	r.samples++
}

// Stop ends the recording and returns the usage since Start.
// If any sample failed the usage is nil and the error is a *SamplingError.
func (r *Recording) Stop(ctx context.Context) (*Usage, error) {
	if r == nil {
		return nil, nil
	}
	r.cancel()
	<-r.done

	end, err := r.sampler.Sample(context.WithoutCancel(ctx))

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.errs = append(r.errs, err)
	}
	if len(r.errs) > 0 {
		return nil, &SamplingError{Err: errors.Join(r.errs...)}
	}
	r.observe(end)

	return &Usage{
		PeakRSSBytes: r.peak,
		UserTime:     end.UserTime - r.start.UserTime,
		SystemTime:   end.SystemTime - r.start.SystemTime,
		MinorFaults:  end.MinorFaults - r.start.MinorFaults,
		MajorFaults:  end.MajorFaults - r.start.MajorFaults,
		Samples:      r.samples,
	}, nil
}
