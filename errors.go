package vecbench

import (
	"errors"

	"github.com/hupe1980/vecbench/dataset"
	"github.com/hupe1980/vecbench/internal/query"
	"github.com/hupe1980/vecbench/provider"
	"github.com/hupe1980/vecbench/resource"
)

var (
	// ErrInvalidSweep is returned when a Sweep fails validation.
	ErrInvalidSweep = errors.New("invalid sweep")

	// ErrWorkloadAborted is matched by the error returned when a run
	// exceeds its failure threshold.
	ErrWorkloadAborted = query.ErrWorkloadAborted

	// ErrInvalidDataset is returned for a malformed dataset.
	ErrInvalidDataset = dataset.ErrInvalidDataset

	// ErrInvalidParams is returned when a provider rejects parameters.
	ErrInvalidParams = provider.ErrInvalidParams
)

type (
	// BuildError is a failed index construction.
	BuildError = provider.BuildError

	// LoadError is a failed load of a persisted index.
	LoadError = provider.LoadError

	// QueryError is a failed query.
	QueryError = provider.QueryError

	// AbortError reports a run aborted by the failure threshold.
	AbortError = query.AbortError

	// SamplingError reports unavailable resource counters. It is never fatal.
	SamplingError = resource.SamplingError
)

// BuildFailure is a sweep entry whose index could not be obtained.
type BuildFailure struct {
	Params   provider.Params
	LoadPath string
	Err      error
}
