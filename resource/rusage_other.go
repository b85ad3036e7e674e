//go:build !unix

package resource

import "context"

// RusageSampler is unavailable on this platform.
type RusageSampler struct{}

// NewRusageSampler returns a sampler that always fails with ErrUnsupported.
func NewRusageSampler() *RusageSampler { return &RusageSampler{} }

// Sample implements Sampler.
func (*RusageSampler) Sample(context.Context) (Snapshot, error) {
	return Snapshot{}, ErrUnsupported
}
