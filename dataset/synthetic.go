package dataset

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/hupe1980/vecbench/distance"
)

// SyntheticOptions describes a generated dataset.
type SyntheticOptions struct {
	Name       string
	Metric     distance.Metric
	Dimension  int
	NumBase    int
	NumQueries int

	// TruthK is the ground-truth depth per query.
	TruthK int

	// Clusters > 0 draws vectors around that many unit centroids instead of uniformly.
	Clusters int

	// Spread is the Gaussian noise around a centroid.
	Spread float64

	Seed int64
}

// DefaultSyntheticOptions contains the defaults for Synthetic.
var DefaultSyntheticOptions = SyntheticOptions{
	Name:       "synthetic",
	Metric:     distance.MetricL2,
	Dimension:  32,
	NumBase:    10000,
	NumQueries: 100,
	TruthK:     100,
	Spread:     0.1,
	Seed:       4711,
}

// Synthetic generates a deterministic dataset with exact ground truth.
func Synthetic(ctx context.Context, optFns ...func(o *SyntheticOptions)) (*Dataset, error) {
	opts := DefaultSyntheticOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dimension <= 0 || opts.NumBase <= 0 || opts.NumQueries <= 0 || opts.TruthK <= 0 {
		return nil, fmt.Errorf("%w: synthetic sizes must be positive: %+v", ErrInvalidDataset, opts)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	var centroids [][]float32
	if opts.Clusters > 0 {
		centroids = make([][]float32, opts.Clusters)
		for i := range centroids {
			centroids[i] = unitVector(rng, opts.Dimension)
		}
	}

	gen := func(n int) [][]float32 {
		data := make([]float32, n*opts.Dimension)
		out := make([][]float32, n)
		for i := range out {
			v := data[i*opts.Dimension : (i+1)*opts.Dimension : (i+1)*opts.Dimension]
			if centroids != nil {
				c := centroids[rng.Intn(len(centroids))]
				for j := range v {
					v[j] = c[j] + float32(rng.NormFloat64()*opts.Spread)
				}
			} else {
				for j := range v {
					v[j] = rng.Float32()
				}
			}
			out[i] = v
		}
		return out
	}

	base := gen(opts.NumBase)
	queries := gen(opts.NumQueries)

	truth, err := ComputeGroundTruth(ctx, base, queries, opts.Metric, min(opts.TruthK, opts.NumBase), 0)
	if err != nil {
		return nil, err
	}
	return New(opts.Name, opts.Metric, base, queries, truth)
}

func unitVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		x := rng.NormFloat64()
		v[i] = float32(x)
		norm += x * x
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}
