package hnsw

import (
	"math"
	"math/rand"
	"slices"
	"sync"

	"github.com/hupe1980/vecbench/distance"
	"github.com/hupe1980/vecbench/internal/queue"
	"github.com/hupe1980/vecbench/internal/vectorstore"
	"github.com/hupe1980/vecbench/internal/visited"
)

const (
	// mmax0Multiplier is the multiplier for calculating maximum connections at layer 0.
	mmax0Multiplier = 2

	// maxLevel caps the randomly drawn node level.
	maxLevel = 16
)

// graph is the HNSW layer structure over a dense vector store.
// It is mutated only during construction and read-only afterwards.
type graph struct {
	vectors *vectorstore.Dense
	dist    distance.Func

	// links[id][layer] holds the neighbors of id on layer.
	links [][][]uint32

	entry    uint32
	topLevel int

	m              int
	m0             int
	efConstruction int
	levelMult      float64

	scratch sync.Pool
}

type scratch struct {
	visited    *visited.Set
	candidates *queue.Queue
	results    *queue.Queue
	selected   []queue.Item
}

func newGraph(vectors *vectorstore.Dense, dist distance.Func, m, efConstruction int) *graph {
	g := &graph{
		vectors:        vectors,
		dist:           dist,
		links:          make([][][]uint32, 0, vectors.Len()),
		m:              m,
		m0:             m * mmax0Multiplier,
		efConstruction: efConstruction,
		levelMult:      1 / math.Log(float64(m)),
	}
	g.scratch.New = func() any {
		return &scratch{
			visited:    visited.New(g.vectors.Len()),
			candidates: queue.NewMin(64),
			results:    queue.NewMax(64),
		}
	}
	return g
}

func (g *graph) getScratch() *scratch {
	s := g.scratch.Get().(*scratch)
	s.visited.Reset()
	s.candidates.Reset()
	s.results.Reset()
	return s
}

func (g *graph) putScratch(s *scratch) { g.scratch.Put(s) }

func (g *graph) maxConn(layer int) int {
	if layer == 0 {
		return g.m0
	}
	return g.m
}

func (g *graph) randomLevel(rng *rand.Rand) int {
	u := rng.Float64()
	if u == 0 {
		u = math.SmallestNonzeroFloat64
	}
	return min(int(math.Floor(-math.Log(u)*g.levelMult)), maxLevel)
}

// insert adds vector id (which must be the next sequential id) to the graph.
func (g *graph) insert(id uint32, level int) {
	g.links = append(g.links, make([][]uint32, level+1))

	if id == 0 {
		g.entry = id
		g.topLevel = level
		return
	}

	s := g.getScratch()
	defer g.putScratch(s)

	q := g.vectors.At(id)
	ep := queue.Item{ID: g.entry, Distance: g.dist(q, g.vectors.At(g.entry))}

	for l := g.topLevel; l > level; l-- {
		ep = g.greedy(q, ep, l)
	}

	eps := []queue.Item{ep}
	for l := min(level, g.topLevel); l >= 0; l-- {
		found := g.searchLayer(q, eps, g.efConstruction, l, s)
		neighbors := g.selectNeighbors(found, g.m, s)

		own := make([]uint32, len(neighbors), g.maxConn(l))
		for i, n := range neighbors {
			own[i] = n.ID
		}
		g.links[id][l] = own

		for _, n := range neighbors {
			g.connect(n.ID, id, l, s)
		}
		eps = found
	}

	if level > g.topLevel {
		g.entry = id
		g.topLevel = level
	}
}

// connect adds a backlink from -> to on layer, pruning from's list when it overflows.
func (g *graph) connect(from, to uint32, layer int, s *scratch) {
	list := g.links[from][layer]
	if slices.Contains(list, to) {
		return
	}
	limit := g.maxConn(layer)
	if len(list) < limit {
		g.links[from][layer] = append(list, to)
		return
	}

	base := g.vectors.At(from)
	cands := make([]queue.Item, 0, len(list)+1)
	for _, id := range list {
		cands = append(cands, queue.Item{ID: id, Distance: g.dist(base, g.vectors.At(id))})
	}
	cands = append(cands, queue.Item{ID: to, Distance: g.dist(base, g.vectors.At(to))})
	sortItems(cands)

	kept := g.selectNeighbors(cands, limit, s)
	list = list[:0]
	for _, n := range kept {
		list = append(list, n.ID)
	}
	g.links[from][layer] = list
}

// selectNeighbors applies the HNSW diversity heuristic to candidates sorted by
// increasing distance, topping up with pruned candidates to keep m links.
func (g *graph) selectNeighbors(cands []queue.Item, m int, s *scratch) []queue.Item {
	if len(cands) <= m {
		return cands
	}

	selected := s.selected[:0]
	var pruned []queue.Item
	for _, c := range cands {
		if len(selected) >= m {
			break
		}
		cv := g.vectors.At(c.ID)
		good := true
		for _, sel := range selected {
			if g.dist(cv, g.vectors.At(sel.ID)) < c.Distance {
				good = false
				break
			}
		}
		if good {
			selected = append(selected, c)
		} else {
			pruned = append(pruned, c)
		}
	}
	for _, c := range pruned {
		if len(selected) >= m {
			break
		}
		selected = append(selected, c)
	}
	s.selected = selected

	return slices.Clone(selected)
}

// greedy walks layer towards q with a beam of one.
func (g *graph) greedy(q []float32, ep queue.Item, layer int) queue.Item {
	for changed := true; changed; {
		changed = false
		for _, n := range g.links[ep.ID][layer] {
			if d := g.dist(q, g.vectors.At(n)); d < ep.Distance {
				ep = queue.Item{ID: n, Distance: d}
				changed = true
			}
		}
	}
	return ep
}

// searchLayer returns up to ef nearest nodes on layer sorted by increasing distance.
func (g *graph) searchLayer(q []float32, eps []queue.Item, ef, layer int, s *scratch) []queue.Item {
	s.visited.Reset()
	s.candidates.Reset()
	s.results.Reset()

	for _, ep := range eps {
		if !s.visited.Visit(ep.ID) {
			continue
		}
		s.candidates.Push(ep)
		s.results.Offer(ep, ef)
	}

	for s.candidates.Len() > 0 {
		c, _ := s.candidates.Pop()
		worst, _ := s.results.Top()
		if c.Distance > worst.Distance && s.results.Len() >= ef {
			break
		}

		for _, n := range g.links[c.ID][layer] {
			if !s.visited.Visit(n) {
				continue
			}
			item := queue.Item{ID: n, Distance: g.dist(q, g.vectors.At(n))}
			if s.results.Offer(item, ef) {
				s.candidates.Push(item)
			}
		}
	}

	return s.results.Sorted()
}

// search answers a k-NN query with a layer-0 beam of ef.
func (g *graph) search(q []float32, k, ef int) []queue.Item {
	s := g.getScratch()
	defer g.putScratch(s)

	ep := queue.Item{ID: g.entry, Distance: g.dist(q, g.vectors.At(g.entry))}
	for l := g.topLevel; l > 0; l-- {
		ep = g.greedy(q, ep, l)
	}

	found := g.searchLayer(q, []queue.Item{ep}, max(ef, k), 0, s)
	if len(found) > k {
		found = found[:k]
	}
	return found
}

// compact trims adjacency capacity left over from construction.
func (g *graph) compact() {
	for id := range g.links {
		for l, list := range g.links[id] {
			if cap(list) > len(list) {
				g.links[id][l] = slices.Clip(slices.Clone(list))
			}
		}
	}
}

func (g *graph) sizeBytes() int64 {
	size := g.vectors.SizeBytes()
	for _, layers := range g.links {
		size += 24
		for _, list := range layers {
			size += 24 + int64(cap(list))*4
		}
	}
	return size
}

func sortItems(items []queue.Item) {
	slices.SortFunc(items, func(a, b queue.Item) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
