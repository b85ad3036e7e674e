package testutil

import (
	"slices"

	"github.com/hupe1980/vecbench/distance"
)

// SearchResult represents a search result.
type SearchResult struct {
	ID       uint32
	Distance float32
}

// ExactTopK returns the k nearest base vectors to query by full sort.
// Ties are broken by id.
func ExactTopK(query []float32, base [][]float32, k int, dist distance.Func) []SearchResult {
	all := make([]SearchResult, len(base))
	for i, v := range base {
		all[i] = SearchResult{ID: uint32(i), Distance: dist(query, v)}
	}
	slices.SortFunc(all, func(a, b SearchResult) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return int(a.ID) - int(b.ID)
	})
	return all[:min(k, len(all))]
}

// ExactGroundTruth returns the ids of the k nearest base vectors for every query.
func ExactGroundTruth(base, queries [][]float32, dist distance.Func, k int) [][]uint32 {
	out := make([][]uint32, len(queries))
	for i, q := range queries {
		res := ExactTopK(q, base, k, dist)
		ids := make([]uint32, len(res))
		for j, r := range res {
			ids[j] = r.ID
		}
		out[i] = ids
	}
	return out
}

// ComputeRecall computes recall@k of approximate ids against ground truth ids.
func ComputeRecall(groundTruth, approximate []uint32) float64 {
	if len(groundTruth) == 0 {
		if len(approximate) == 0 {
			return 1.0
		}
		return 0.0
	}

	truth := make(map[uint32]struct{}, len(groundTruth))
	for _, id := range groundTruth {
		truth[id] = struct{}{}
	}

	hits := 0
	for _, id := range approximate {
		if _, ok := truth[id]; ok {
			hits++
			delete(truth, id)
		}
	}

	return float64(hits) / float64(len(groundTruth))
}
