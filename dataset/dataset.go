// Package dataset holds the immutable benchmark input: base vectors, query
// vectors and the ground-truth nearest neighbors of every query.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecbench/distance"
	"github.com/hupe1980/vecbench/internal/queue"
)

// ErrInvalidDataset is returned when a dataset fails validation.
var ErrInvalidDataset = errors.New("invalid dataset")

// Dataset is a named set of base vectors, queries and ground truth.
//
// A Dataset is read-only after New returns and may be shared across
// goroutines. Callers must not mutate the slices.
type Dataset struct {
	Name   string
	Metric distance.Metric

	// Base holds the indexed vectors; the position is the vector id.
	Base [][]float32

	// Queries holds the query vectors; the position is the query id.
	Queries [][]float32

	// GroundTruth[i] lists the true nearest base ids of query i, nearest first.
	GroundTruth [][]uint32
}

// New validates and returns a dataset.
func New(name string, metric distance.Metric, base, queries [][]float32, truth [][]uint32) (*Dataset, error) {
	ds := &Dataset{
		Name:        name,
		Metric:      metric,
		Base:        base,
		Queries:     queries,
		GroundTruth: truth,
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Validate checks dimensions, counts and ground-truth id ranges.
func (ds *Dataset) Validate() error {
	if ds.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDataset)
	}
	if _, err := distance.Provider(ds.Metric); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}
	if len(ds.Base) == 0 {
		return fmt.Errorf("%w: no base vectors", ErrInvalidDataset)
	}
	if len(ds.Queries) == 0 {
		return fmt.Errorf("%w: no queries", ErrInvalidDataset)
	}

	dim := len(ds.Base[0])
	if dim == 0 {
		return fmt.Errorf("%w: zero dimension", ErrInvalidDataset)
	}
	for i, v := range ds.Base {
		if len(v) != dim {
			return fmt.Errorf("%w: base vector %d has dimension %d, want %d", ErrInvalidDataset, i, len(v), dim)
		}
	}
	for i, v := range ds.Queries {
		if len(v) != dim {
			return fmt.Errorf("%w: query %d has dimension %d, want %d", ErrInvalidDataset, i, len(v), dim)
		}
	}

	if len(ds.GroundTruth) != len(ds.Queries) {
		return fmt.Errorf("%w: %d ground-truth lists for %d queries", ErrInvalidDataset, len(ds.GroundTruth), len(ds.Queries))
	}
	for i, ids := range ds.GroundTruth {
		for _, id := range ids {
			if int64(id) >= int64(len(ds.Base)) {
				return fmt.Errorf("%w: ground truth of query %d references id %d outside base of %d", ErrInvalidDataset, i, id, len(ds.Base))
			}
		}
	}
	return nil
}

// Dimension returns the vector dimension.
func (ds *Dataset) Dimension() int { return len(ds.Base[0]) }

// Len returns the number of base vectors.
func (ds *Dataset) Len() int { return len(ds.Base) }

// NumQueries returns the number of queries.
func (ds *Dataset) NumQueries() int { return len(ds.Queries) }

// MaxTruth returns the length of the longest ground-truth list.
func (ds *Dataset) MaxTruth() int {
	n := 0
	for _, ids := range ds.GroundTruth {
		n = max(n, len(ids))
	}
	return n
}

// ComputeGroundTruth returns the exact k nearest base ids for every query,
// nearest first with ties broken by id. Queries are spread over workers
// goroutines (GOMAXPROCS when workers <= 0).
func ComputeGroundTruth(ctx context.Context, base, queries [][]float32, metric distance.Metric, k, workers int) ([][]uint32, error) {
	dist, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	normalize := metric.NeedsNormalization()
	nbase := base
	if normalize {
		nbase = make([][]float32, len(base))
		for i, v := range base {
			nbase[i] = distance.NormalizeL2Copy(v)
		}
	}

	truth := make([][]uint32, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for qi := range queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			q := queries[qi]
			if normalize {
				q = distance.NormalizeL2Copy(q)
			}

			pq := queue.NewMax(k)
			for id, v := range nbase {
				pq.Offer(queue.Item{ID: uint32(id), Distance: dist(q, v)}, k)
			}

			items := pq.Sorted()
			ids := make([]uint32, len(items))
			for i, it := range items {
				ids[i] = it.ID
			}
			truth[qi] = ids
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return truth, nil
}
