//go:build unix

package resource

import (
	"context"
	"time"

	"golang.org/x/sys/unix"
)

// RusageSampler samples the current process with getrusage(2).
type RusageSampler struct{}

// NewRusageSampler returns a sampler for the current process.
func NewRusageSampler() *RusageSampler { return &RusageSampler{} }

// Sample implements Sampler.
func (*RusageSampler) Sample(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		MaxRSSBytes: maxRSSBytes(int64(ru.Maxrss)),
		UserTime:    time.Duration(ru.Utime.Nano()),
		SystemTime:  time.Duration(ru.Stime.Nano()),
		MinorFaults: int64(ru.Minflt),
		MajorFaults: int64(ru.Majflt),
	}

	rss, err := currentRSS()
	if err != nil {
		return Snapshot{}, err
	}
	if rss <= 0 {
		rss = snap.MaxRSSBytes
	}
	snap.RSSBytes = rss
	return snap, nil
}
