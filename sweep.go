package vecbench

import (
	"fmt"

	"github.com/hupe1980/vecbench/internal/query"
	"github.com/hupe1980/vecbench/provider"
)

// NoFailureLimit disables the per-run failure threshold.
const NoFailureLimit = query.NoFailureLimit

// AllQueries selects the whole query set for warm-up.
const AllQueries = query.AllQueries

// BuildSpec is one entry of the build sweep.
type BuildSpec struct {
	// Params are the provider build parameters.
	Params provider.Params

	// LoadPath loads a persisted index instead of building one.
	LoadPath string

	// SavePath persists the built index when the provider supports it.
	SavePath string
}

// Sweep is the parameter space of a benchmark session.
// Every combination of Builds, Searches and Concurrency is measured in that
// nesting order.
type Sweep struct {
	Builds []BuildSpec

	// Searches are the search parameter sets. Empty means a single run with
	// the provider's default search parameters.
	Searches []provider.Params

	// Concurrency lists the worker counts. Empty means a single worker.
	Concurrency []int

	// K is the number of neighbors requested and the recall depth.
	K int

	// WarmupQueries is the query prefix replayed before measuring;
	// AllQueries replays the full set and 0 disables warm-up.
	WarmupQueries int

	// WarmupPasses is the number of warm-up replays. Default 1 when
	// WarmupQueries is set.
	WarmupPasses int

	// FailureThreshold aborts the session once a run has more failed
	// queries than this. NoFailureLimit disables it.
	FailureThreshold int

	// TargetQPS paces dispatch when > 0.
	TargetQPS float64

	// BuildParallelism is the number of concurrent builds. Default 1.
	BuildParallelism int

	// BuildMemoryBudget is reserved per concurrent build.
	// Required when BuildParallelism > 1. Without WithController the session
	// enforces a total of BuildParallelism * BuildMemoryBudget bytes.
	BuildMemoryBudget int64
}

// withDefaults fills in the implicit single search and concurrency level.
func (s Sweep) withDefaults() Sweep {
	if len(s.Searches) == 0 {
		s.Searches = []provider.Params{{}}
	}
	if len(s.Concurrency) == 0 {
		s.Concurrency = []int{1}
	}
	if s.WarmupQueries != 0 && s.WarmupPasses == 0 {
		s.WarmupPasses = 1
	}
	if s.BuildParallelism <= 0 {
		s.BuildParallelism = 1
	}
	return s
}

// Validate checks the sweep and every parameter set against p.
func (s Sweep) Validate(p provider.Provider) error {
	s = s.withDefaults()

	if len(s.Builds) == 0 {
		return fmt.Errorf("%w: no build parameters", ErrInvalidSweep)
	}
	if s.K < 1 {
		return fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidSweep, s.K)
	}

	cfg := s.queryConfig(provider.Params{}, 1)
	for _, c := range s.Concurrency {
		cfg.Concurrency = c
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSweep, err)
		}
	}
	if s.BuildParallelism > 1 && s.BuildMemoryBudget <= 0 {
		return fmt.Errorf("%w: parallel builds need a positive memory budget", ErrInvalidSweep)
	}

	seen := make(map[string]bool)
	for _, b := range s.Builds {
		key := b.Params.Key() + "|" + b.LoadPath
		if seen[key] {
			return fmt.Errorf("%w: duplicate build parameters %q", ErrInvalidSweep, b.Params)
		}
		seen[key] = true
		if err := p.ValidateBuild(b.Params); err != nil {
			return fmt.Errorf("%w: build parameters %q: %w", ErrInvalidSweep, b.Params, err)
		}
	}

	clear(seen)
	for _, sp := range s.Searches {
		if seen[sp.Key()] {
			return fmt.Errorf("%w: duplicate search parameters %q", ErrInvalidSweep, sp)
		}
		seen[sp.Key()] = true
		if err := p.ValidateSearch(sp); err != nil {
			return fmt.Errorf("%w: search parameters %q: %w", ErrInvalidSweep, sp, err)
		}
	}

	levels := make(map[int]bool)
	for _, c := range s.Concurrency {
		if levels[c] {
			return fmt.Errorf("%w: duplicate concurrency %d", ErrInvalidSweep, c)
		}
		levels[c] = true
	}
	return nil
}

// Combinations returns the number of runs a fully successful sweep produces.
func (s Sweep) Combinations() int {
	s = s.withDefaults()
	return len(s.Builds) * len(s.Searches) * len(s.Concurrency)
}

func (s Sweep) queryConfig(search provider.Params, concurrency int) query.Config {
	return query.Config{
		Concurrency:      concurrency,
		K:                s.K,
		Search:           search,
		WarmupQueries:    s.WarmupQueries,
		WarmupPasses:     s.WarmupPasses,
		FailureThreshold: s.FailureThreshold,
		TargetQPS:        s.TargetQPS,
	}
}
