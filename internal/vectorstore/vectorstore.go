// Package vectorstore provides a dense, append-only columnar vector store.
//
// Vectors are stored contiguously in a single []float32 slice: vector id i
// occupies data[i*dim : (i+1)*dim]. Concurrent reads are safe once writes
// have finished; writes require external synchronization.
package vectorstore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecbench/distance"
)

var (
	// ErrDimensionMismatch is returned when a vector has the wrong length.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrEmpty is returned when a store would be built from no vectors.
	ErrEmpty = errors.New("no vectors")
)

// Dense is a contiguous vector store.
type Dense struct {
	dim  int
	data []float32
}

// New creates an empty store with capacity for n vectors.
func New(dim, n int) *Dense {
	return &Dense{dim: dim, data: make([]float32, 0, dim*n)}
}

// FromVectors copies vectors into a new store. When normalize is set every
// stored vector is L2-normalized.
func FromVectors(vectors [][]float32, normalize bool) (*Dense, error) {
	if len(vectors) == 0 {
		return nil, ErrEmpty
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-length vector", ErrDimensionMismatch)
	}

	s := New(dim, len(vectors))
	for i, v := range vectors {
		if err := s.Append(v); err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		if normalize {
			distance.NormalizeL2InPlace(s.At(uint32(i)))
		}
	}
	return s, nil
}

// Wrap adopts data as the backing storage of a store with the given dimension.
func Wrap(dim int, data []float32) (*Dense, error) {
	if dim <= 0 || len(data)%dim != 0 {
		return nil, fmt.Errorf("%w: %d values for dimension %d", ErrDimensionMismatch, len(data), dim)
	}
	return &Dense{dim: dim, data: data}, nil
}

// Append adds v with the next sequential id.
func (s *Dense) Append(v []float32) error {
	if len(v) != s.dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.dim, len(v))
	}
	s.data = append(s.data, v...)
	return nil
}

// At returns the vector stored under id. The slice aliases the store.
func (s *Dense) At(id uint32) []float32 {
	off := int(id) * s.dim
	return s.data[off : off+s.dim : off+s.dim]
}

// Len returns the number of stored vectors.
func (s *Dense) Len() int { return len(s.data) / s.dim }

// Dim returns the vector dimension.
func (s *Dense) Dim() int { return s.dim }

// Data returns the contiguous backing slice.
func (s *Dense) Data() []float32 { return s.data }

// SizeBytes returns the size of the vector payload.
func (s *Dense) SizeBytes() int64 { return int64(len(s.data)) * 4 }
