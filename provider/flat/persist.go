package flat

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

// Save writes h to path. Stored vectors are already normalized for cosine.
func (f *Provider) Save(ctx context.Context, ph provider.Handle, path string) error {
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

	hdr := persistence.Header{
		Kind:        persistence.KindFlat,
		Compression: f.opts.Compression,
		Metric:      uint8(h.metric),
		Dimension:   uint32(h.vectors.Dim()),
		Count:       uint64(h.vectors.Len()),
	}
	return persistence.SaveToFile(path, hdr, func(w *persistence.Writer) error {
		return w.WriteFloat32s(h.vectors.Data())
	})
}

// Load reads an index written by Save. Only empty params are accepted.
func (f *Provider) Load(ctx context.Context, path string, p provider.Params) (provider.Handle, error) {
	h, err := f.load(ctx, path, p)
	if err != nil {
		return nil, provider.AsLoadError(Name, path, err)
	}
	return h, nil
}

func (f *Provider) load(ctx context.Context, path string, p provider.Params) (*Handle, error) {
	if err := f.ValidateBuild(p); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var h *Handle
	err := persistence.LoadFromFile(path, persistence.KindFlat, func(hdr *persistence.Header, r *persistence.Reader) error {
		metric := distance.Metric(hdr.Metric)
		dist, err := distance.Provider(metric)
		if err != nil {
			return fmt.Errorf("%w: %w", persistence.ErrCorrupt, err)
		}
		if hdr.Count == 0 || hdr.Count > math.MaxUint32 {
			return fmt.Errorf("%w: vector count %d", persistence.ErrCorrupt, hdr.Count)
		}

		data := make([]float32, int(hdr.Count)*int(hdr.Dimension))
		if err := r.ReadFloat32sInto(data); err != nil {
			return err
		}
		store, err := vectorstore.Wrap(int(hdr.Dimension), data)
		if err != nil {
			return err
		}
		h = &Handle{metric: metric, dist: dist, vectors: store}
		return nil
	})
	if err != nil {
		if errors.Is(err, persistence.ErrFormat) {
			return nil, fmt.Errorf("%w: %w", provider.ErrIncompatibleFormat, err)
		}
		return nil, err
	}
	return h, nil
}
