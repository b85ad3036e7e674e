// Package recall scores query results against ground truth.
//
// Recall for query q at depth k is |R ∩ G_k| / |G_k| where G_k is the first
// min(k, |G|) ground-truth ids and R the returned ids. Duplicate ids in R are
// counted once and provider ordering is trusted as-is.
package recall

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// Evaluator holds the truncated ground truth for every query.
// It is read-only after New and safe for concurrent use.
type Evaluator struct {
	k     int
	truth []*roaring.Bitmap
}

// New precomputes the first min(k, |G|) ground-truth ids of every query.
func New(groundTruth [][]uint32, k int) (*Evaluator, error) {
	if k <= 0 {
		return nil, fmt.Errorf("recall depth must be positive, got %d", k)
	}

	truth := make([]*roaring.Bitmap, len(groundTruth))
	for i, ids := range groundTruth {
		bm := roaring.New()
		bm.AddMany(ids[:min(k, len(ids))])
		bm.RunOptimize()
		truth[i] = bm
	}
	return &Evaluator{k: k, truth: truth}, nil
}

// K returns the evaluation depth.
func (e *Evaluator) K() int { return e.k }

// Evaluate returns the recall of ids for queryID. ok is false when the query
// has no ground truth and must be left out of any mean.
func (e *Evaluator) Evaluate(queryID int, ids []uint32) (value float64, ok bool) {
	if queryID < 0 || queryID >= len(e.truth) {
		return 0, false
	}
	g := e.truth[queryID]
	size := g.GetCardinality()
	if size == 0 {
		return 0, false
	}

	hits := roaring.New()
	for _, id := range ids {
		if g.Contains(id) {
			hits.Add(id)
		}
	}
	return float64(hits.GetCardinality()) / float64(size), true
}

// Scored is a result to be scored.
type Scored struct {
	QueryID int
	IDs     []uint32
}

// Mean averages Evaluate over results, skipping queries without ground truth.
// n is the number of results that contributed; the mean is 0 when n is 0.
func (e *Evaluator) Mean(results []Scored) (mean float64, n int) {
	var sum float64
	for _, r := range results {
		v, ok := e.Evaluate(r.QueryID, r.IDs)
		if !ok {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
