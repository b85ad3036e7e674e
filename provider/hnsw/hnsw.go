// Package hnsw implements the Hierarchical Navigable Small World (HNSW) graph
// as an approximate index provider.
//
// Build parameters:
//
//	m                maximum links per node on upper layers (layer 0 keeps 2*m), >= 2
//	ef_construction  candidate list size during insertion, >= 1
//	seed             level generator seed; equal seeds build identical graphs
//
// Search parameters:
//
//	ef               layer-0 candidate list size, >= 1; max(ef, k) is used
//
// Graphs are built by a single goroutine and are read-only afterwards, so
// queries against one handle may run concurrently.
package hnsw

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecbench/distance"
	"github.com/hupe1980/vecbench/internal/vectorstore"
	"github.com/hupe1980/vecbench/persistence"
	"github.com/hupe1980/vecbench/provider"
)

const (
	// Name is the registered provider name.
	Name = "hnsw"

	// DefaultM is the default number of bidirectional links.
	DefaultM = 16

	// DefaultEFConstruction is the default construction candidate list size.
	DefaultEFConstruction = 200

	// DefaultEF is the default search candidate list size.
	DefaultEF = 64

	// DefaultSeed is the default level generator seed.
	DefaultSeed = 42

	// minimumM is the minimum valid value for M.
	minimumM = 2

	// cancelCheckInterval is how many inserts run between context checks.
	cancelCheckInterval = 256

	PhaseInsert   = "insert"
	PhaseFinalize = "finalize"
)

// Compile-time checks to ensure Provider satisfies the optional interfaces.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.Saver         = (*Provider)(nil)
	_ provider.PhaseReporter = (*Handle)(nil)
)

// BuildOptions are the decoded build parameters.
type BuildOptions struct {
	M              int   `param:"m"`
	EFConstruction int   `param:"ef_construction"`
	Seed           int64 `param:"seed"`
}

// DefaultBuildOptions contains the defaults applied before decoding.
var DefaultBuildOptions = BuildOptions{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	Seed:           DefaultSeed,
}

// SearchOptions are the decoded search parameters.
type SearchOptions struct {
	EF int `param:"ef"`
}

// DefaultSearchOptions contains the defaults applied before decoding.
var DefaultSearchOptions = SearchOptions{EF: DefaultEF}

// ParseBuildOptions decodes and validates build parameters.
func ParseBuildOptions(p provider.Params) (BuildOptions, error) {
	opts := DefaultBuildOptions
	if err := provider.Decode(p, &opts); err != nil {
		return opts, err
	}
	if opts.M < minimumM {
		return opts, fmt.Errorf("%w: m must be >= %d, got %d", provider.ErrInvalidParams, minimumM, opts.M)
	}
	if opts.EFConstruction < 1 {
		return opts, fmt.Errorf("%w: ef_construction must be >= 1, got %d", provider.ErrInvalidParams, opts.EFConstruction)
	}
	return opts, nil
}

// ParseSearchOptions decodes and validates search parameters.
func ParseSearchOptions(p provider.Params) (SearchOptions, error) {
	opts := DefaultSearchOptions
	if err := provider.Decode(p, &opts); err != nil {
		return opts, err
	}
	if opts.EF < 1 {
		return opts, fmt.Errorf("%w: ef must be >= 1, got %d", provider.ErrInvalidParams, opts.EF)
	}
	return opts, nil
}

// Options configures the provider itself, independent of index parameters.
type Options struct {
	// Compression is applied to persisted indexes.
	Compression persistence.Compression
}

// DefaultOptions contains the default provider configuration.
var DefaultOptions = Options{
	Compression: persistence.CompressionLZ4,
}

// Provider builds and queries HNSW graphs.
type Provider struct {
	opts Options
}

// New creates an HNSW provider.
func New(optFns ...func(o *Options)) *Provider {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{opts: opts}
}

// Handle is a built or loaded HNSW graph.
type Handle struct {
	g      *graph
	metric distance.Metric
	build  BuildOptions
	phases []provider.Phase
	closed atomic.Bool
}

// SizeBytes implements provider.Handle.
func (h *Handle) SizeBytes() int64 { return h.g.sizeBytes() }

// Phases implements provider.PhaseReporter.
func (h *Handle) Phases() []provider.Phase { return h.phases }

// Options returns the build options the graph was constructed with.
func (h *Handle) Options() BuildOptions { return h.build }

func (*Provider) Name() string { return Name }

func (*Provider) ValidateBuild(p provider.Params) error {
	_, err := ParseBuildOptions(p)
	return err
}

func (*Provider) ValidateSearch(p provider.Params) error {
	_, err := ParseSearchOptions(p)
	return err
}

// Build inserts vectors in id order.
func (hp *Provider) Build(ctx context.Context, vectors [][]float32, metric distance.Metric, p provider.Params) (provider.Handle, error) {
	h, err := hp.build(ctx, vectors, metric, p)
	if err != nil {
		return nil, provider.AsBuildError(Name, p, err)
	}
	return h, nil
}

func (hp *Provider) build(ctx context.Context, vectors [][]float32, metric distance.Metric, p provider.Params) (*Handle, error) {
	opts, err := ParseBuildOptions(p)
	if err != nil {
		return nil, err
	}
	dist, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	store, err := vectorstore.FromVectors(vectors, metric.NeedsNormalization())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	g := newGraph(store, dist, opts.M, opts.EFConstruction)
	rng := rand.New(rand.NewSource(opts.Seed))
	for i := 0; i < store.Len(); i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		g.insert(uint32(i), g.randomLevel(rng))
	}
	insertDone := time.Now()

	g.compact()
	finalizeDone := time.Now()

	return &Handle{
		g:      g,
		metric: metric,
		build:  opts,
		phases: []provider.Phase{
			{Name: PhaseInsert, Duration: insertDone.Sub(start)},
			{Name: PhaseFinalize, Duration: finalizeDone.Sub(insertDone)},
		},
	}, nil
}

// Query searches the graph with ef = max(ef, k).
func (hp *Provider) Query(ctx context.Context, h provider.Handle, vector []float32, p provider.Params, k int) ([]provider.Neighbor, error) {
	res, err := hp.query(ctx, h, vector, p, k)
	if err != nil {
		return nil, provider.AsQueryError(Name, err)
	}
	return res, nil
}

func (hp *Provider) query(ctx context.Context, ph provider.Handle, vector []float32, p provider.Params, k int) ([]provider.Neighbor, error) {
	h, err := handleOf(ph)
	if err != nil {
		return nil, err
	}
	if h.closed.Load() {
		return nil, provider.ErrClosed
	}
	opts, err := ParseSearchOptions(p)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", provider.ErrInvalidParams, k)
	}
	if len(vector) != h.g.vectors.Dim() {
		return nil, fmt.Errorf("%w: expected %d, got %d", vectorstore.ErrDimensionMismatch, h.g.vectors.Dim(), len(vector))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := vector
	if h.metric.NeedsNormalization() {
		q = distance.NormalizeL2Copy(vector)
	}

	items := h.g.search(q, k, opts.EF)
	out := make([]provider.Neighbor, len(items))
	for i, it := range items {
		out[i] = provider.Neighbor{ID: it.ID, Distance: it.Distance}
	}
	return out, nil
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
		return nil, fmt.Errorf("%w: not an hnsw handle (%T)", provider.ErrInvalidParams, ph)
	}
	return h, nil
}
