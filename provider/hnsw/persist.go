package hnsw

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/vecbench/distance"
	"github.com/hupe1980/vecbench/internal/vectorstore"
	"github.com/hupe1980/vecbench/persistence"
	"github.com/hupe1980/vecbench/provider"
)

// Save writes the graph and its vectors to path.
//
// Body layout: m, ef_construction, seed, entry, top level, vectors,
// then per node the layer count followed by each layer's link list.
func (hp *Provider) Save(ctx context.Context, ph provider.Handle, path string) error {
	h, err := handleOf(ph)
	if err != nil {
		return err
	}
	if h.closed.Load() {
		return provider.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	g := h.g
	hdr := persistence.Header{
		Kind:        persistence.KindHNSW,
		Compression: hp.opts.Compression,
		Metric:      uint8(h.metric),
		Dimension:   uint32(g.vectors.Dim()),
		Count:       uint64(g.vectors.Len()),
	}
	return persistence.SaveToFile(path, hdr, func(w *persistence.Writer) error {
		for _, v := range []uint64{uint64(h.build.M), uint64(h.build.EFConstruction), uint64(h.build.Seed), uint64(g.entry), uint64(g.topLevel)} {
			if err := w.WriteUint64(v); err != nil {
				return err
			}
		}
		if err := w.WriteFloat32s(g.vectors.Data()); err != nil {
			return err
		}
		for _, layers := range g.links {
			if err := w.WriteUint32(uint32(len(layers))); err != nil {
				return err
			}
			for _, list := range layers {
				if err := w.WriteUint32s(list); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Load reads a graph written by Save. Build parameters present in p must
// match the ones the graph was built with.
func (hp *Provider) Load(ctx context.Context, path string, p provider.Params) (provider.Handle, error) {
	h, err := hp.load(ctx, path, p)
	if err != nil {
		return nil, provider.AsLoadError(Name, path, err)
	}
	return h, nil
}

func (hp *Provider) load(ctx context.Context, path string, p provider.Params) (*Handle, error) {
	want, err := ParseBuildOptions(p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var h *Handle
	err = persistence.LoadFromFile(path, persistence.KindHNSW, func(hdr *persistence.Header, r *persistence.Reader) error {
		var err error
		h, err = readGraph(hdr, r)
		return err
	})
	if err != nil {
		if errors.Is(err, persistence.ErrFormat) {
			return nil, fmt.Errorf("%w: %w", provider.ErrIncompatibleFormat, err)
		}
		return nil, err
	}

	got := h.build
	for _, key := range p.Keys() {
		mismatch := (key == "m" && got.M != want.M) ||
			(key == "ef_construction" && got.EFConstruction != want.EFConstruction) ||
			(key == "seed" && got.Seed != want.Seed)
		if mismatch {
			return nil, fmt.Errorf("%w: persisted index was built with %s, requested %q",
				provider.ErrInvalidParams, formatBuild(got), p)
		}
	}
	return h, nil
}

func readGraph(hdr *persistence.Header, r *persistence.Reader) (*Handle, error) {
	metric := distance.Metric(hdr.Metric)
	dist, err := distance.Provider(metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", persistence.ErrCorrupt, err)
	}
	if hdr.Count == 0 || hdr.Count > math.MaxUint32 {
		return nil, fmt.Errorf("%w: vector count %d", persistence.ErrCorrupt, hdr.Count)
	}
	count := int(hdr.Count)

	var meta [5]uint64
	for i := range meta {
		if meta[i], err = r.ReadUint64(); err != nil {
			return nil, err
		}
	}
	build := BuildOptions{M: int(meta[0]), EFConstruction: int(meta[1]), Seed: int64(meta[2])}
	entry, topLevel := meta[3], meta[4]
	if build.M < minimumM || build.M > math.MaxUint16 || entry >= hdr.Count || topLevel > maxLevel {
		return nil, fmt.Errorf("%w: graph metadata", persistence.ErrCorrupt)
	}

	data := make([]float32, count*int(hdr.Dimension))
	if err := r.ReadFloat32sInto(data); err != nil {
		return nil, err
	}
	store, err := vectorstore.Wrap(int(hdr.Dimension), data)
	if err != nil {
		return nil, err
	}

	g := newGraph(store, dist, build.M, build.EFConstruction)
	g.entry = uint32(entry)
	g.topLevel = int(topLevel)
	g.links = make([][][]uint32, count)
	for id := range g.links {
		n, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		if n == 0 || n > maxLevel+1 {
			return nil, fmt.Errorf("%w: node %d has %d layers", persistence.ErrCorrupt, id, n)
		}
		layers := make([][]uint32, n)
		for l := range layers {
			list, err := r.ReadUint32s(g.maxConn(l))
			if err != nil {
				return nil, err
			}
			for _, nb := range list {
				if uint64(nb) >= hdr.Count {
					return nil, fmt.Errorf("%w: node %d links to %d", persistence.ErrCorrupt, id, nb)
				}
			}
			layers[l] = list
		}
		g.links[id] = layers
	}
	if len(g.links[entry]) <= g.topLevel {
		return nil, fmt.Errorf("%w: entry point below top level", persistence.ErrCorrupt)
	}
	for id, layers := range g.links {
		for l, list := range layers {
			for _, nb := range list {
				if len(g.links[nb]) <= l {
					return nil, fmt.Errorf("%w: node %d links to %d above its level", persistence.ErrCorrupt, id, nb)
				}
			}
		}
	}

	return &Handle{g: g, metric: metric, build: build}, nil
}

func formatBuild(o BuildOptions) string {
	return fmt.Sprintf("m=%d ef_construction=%d seed=%d", o.M, o.EFConstruction, o.Seed)
}
