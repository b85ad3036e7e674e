package provider

import (
	"context"
	"time"

	"github.com/hupe1980/vecbench/distance"
)

// Neighbor is a single search hit.
type Neighbor struct {
	ID       uint32
	Distance float32
}

// Handle is an opaque reference to a built or loaded index.
// It is owned by whoever obtained it from Build or Load and must be released
// with Provider.Close.
type Handle interface {
	// SizeBytes reports the approximate in-memory footprint of the index.
	SizeBytes() int64
}

// Phase is a named, timed step of an index build.
type Phase struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// PhaseReporter is optionally implemented by handles that record build phases.
type PhaseReporter interface {
	Phases() []Phase
}

// Provider is the capability set of an ANN index backend.
type Provider interface {
	// Name returns the stable provider name used in reports (e.g. "hnsw").
	Name() string

	// ValidateBuild checks build parameters without building anything.
	ValidateBuild(p Params) error

	// ValidateSearch checks search parameters without querying anything.
	ValidateSearch(p Params) error

	// Build constructs an index over vectors. Failures are reported as *BuildError.
	Build(ctx context.Context, vectors [][]float32, metric distance.Metric, p Params) (Handle, error)

	// Load reconstructs a persisted index. Failures are reported as *LoadError.
	Load(ctx context.Context, path string, p Params) (Handle, error)

	// Query returns up to k neighbors of vector ordered by increasing distance.
	// Failures are reported as *QueryError.
	Query(ctx context.Context, h Handle, vector []float32, p Params, k int) ([]Neighbor, error)

	// Close releases the resources held by h. It is idempotent.
	Close(h Handle) error
}

// Saver is optionally implemented by providers that can persist a handle
// so that a later Load can skip the build.
type Saver interface {
	Save(ctx context.Context, h Handle, path string) error
}
