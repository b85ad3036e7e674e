// Package flat implements an exact brute-force index provider.
//
// Every query scans all stored vectors, so results are exact and the provider
// serves as the recall reference for approximate backends. Flat accepts no
// build or search parameters.
package flat

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/vecbench/distance"
	"github.com/hupe1980/vecbench/internal/queue"
	"github.com/hupe1980/vecbench/internal/vectorstore"
	"github.com/hupe1980/vecbench/persistence"
	"github.com/hupe1980/vecbench/provider"
)

// Name is the registered provider name.
const Name = "flat"

// Compile-time checks to ensure Provider satisfies the optional interfaces.
var (
	_ provider.Provider = (*Provider)(nil)
	_ provider.Saver    = (*Provider)(nil)
)

// cancelCheckInterval is how many vectors are copied between context checks during Build.
const cancelCheckInterval = 4096

// Options configures the flat provider.
type Options struct {
	// Compression is applied to persisted indexes.
	Compression persistence.Compression
}

// DefaultOptions contains the default configuration for the flat provider.
var DefaultOptions = Options{
	Compression: persistence.CompressionZstd,
}

// Provider is the exact brute-force provider.
type Provider struct {
	opts Options
}

// New creates a flat provider.
func New(optFns ...func(o *Options)) *Provider {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{opts: opts}
}

// Handle is a built or loaded flat index.
type Handle struct {
	metric  distance.Metric
	dist    distance.Func
	vectors *vectorstore.Dense
	closed  atomic.Bool
}

// SizeBytes implements provider.Handle.
func (h *Handle) SizeBytes() int64 { return h.vectors.SizeBytes() }

// Len returns the number of indexed vectors.
func (h *Handle) Len() int { return h.vectors.Len() }

func (*Provider) Name() string { return Name }

func (*Provider) ValidateBuild(p provider.Params) error {
	if p.Len() != 0 {
		return fmt.Errorf("%w: flat accepts no build parameters, got %q", provider.ErrInvalidParams, p)
	}
	return nil
}

func (*Provider) ValidateSearch(p provider.Params) error {
	if p.Len() != 0 {
		return fmt.Errorf("%w: flat accepts no search parameters, got %q", provider.ErrInvalidParams, p)
	}
	return nil
}

// Build copies vectors into a contiguous store.
func (f *Provider) Build(ctx context.Context, vectors [][]float32, metric distance.Metric, p provider.Params) (provider.Handle, error) {
	h, err := f.build(ctx, vectors, metric, p)
	if err != nil {
		return nil, provider.AsBuildError(Name, p, err)
	}
	return h, nil
}

func (f *Provider) build(ctx context.Context, vectors [][]float32, metric distance.Metric, p provider.Params) (*Handle, error) {
	if err := f.ValidateBuild(p); err != nil {
		return nil, err
	}
	dist, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, vectorstore.ErrEmpty
	}

	store := vectorstore.New(len(vectors[0]), len(vectors))
	for i, v := range vectors {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := store.Append(v); err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		if metric.NeedsNormalization() {
			distance.NormalizeL2InPlace(store.At(uint32(i)))
		}
	}

	return &Handle{metric: metric, dist: dist, vectors: store}, nil
}

// Query scans every vector and keeps the k closest.
func (f *Provider) Query(ctx context.Context, h provider.Handle, vector []float32, p provider.Params, k int) ([]provider.Neighbor, error) {
	res, err := f.query(ctx, h, vector, p, k)
	if err != nil {
		return nil, provider.AsQueryError(Name, err)
	}
	return res, nil
}

func (f *Provider) query(ctx context.Context, ph provider.Handle, vector []float32, p provider.Params, k int) ([]provider.Neighbor, error) {
	h, err := handleOf(ph)
	if err != nil {
		return nil, err
	}
	if h.closed.Load() {
		return nil, provider.ErrClosed
	}
	if err := f.ValidateSearch(p); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", provider.ErrInvalidParams, k)
	}
	if len(vector) != h.vectors.Dim() {
		return nil, fmt.Errorf("%w: expected %d, got %d", vectorstore.ErrDimensionMismatch, h.vectors.Dim(), len(vector))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := vector
	if h.metric.NeedsNormalization() {
		q = distance.NormalizeL2Copy(vector)
	}

	return TopK(h.vectors, h.dist, q, k), nil
}

// TopK returns the exact k nearest neighbors of q in store.
func TopK(store *vectorstore.Dense, dist distance.Func, q []float32, k int) []provider.Neighbor {
	pq := queue.NewMax(k)
	n := store.Len()
	for i := 0; i < n; i++ {
		id := uint32(i)
		pq.Offer(queue.Item{ID: id, Distance: dist(q, store.At(id))}, k)
	}

	items := pq.Sorted()
	out := make([]provider.Neighbor, len(items))
	for i, it := range items {
		out[i] = provider.Neighbor{ID: it.ID, Distance: it.Distance}
	}
	return out
}

// Close marks h closed. It is idempotent.
func (*Provider) Close(ph provider.Handle) error {
	h, err := handleOf(ph)
	if err != nil {
		return err
	}
	h.closed.Store(true)
	return nil
}

func handleOf(ph provider.Handle) (*Handle, error) {
	h, ok := ph.(*Handle)
	if !ok || h == nil {
		return nil, fmt.Errorf("%w: not a flat handle (%T)", provider.ErrInvalidParams, ph)
	}
	return h, nil
}
