package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecbench/distance"
	"github.com/hupe1980/vecbench/provider"
)

func TestUniformVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UniformVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))
	assert.LessOrEqual(t, v[0][0], float32(1.0))
	assert.GreaterOrEqual(t, v[1][0], float32(0.0))
}

func TestUnitVectors(t *testing.T) {
	rng := NewRNG(4711)

	for _, vec := range rng.UnitVectors(8, 32) {
		assert.InDelta(t, float32(1.0), distance.Dot(vec, vec), 1e-5)
	}
}

func TestClusteredVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.ClusteredVectors(100, 32, 5, 0.1)

	assert.Equal(t, 100, len(v))
	assert.Equal(t, 32, len(v[0]))
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.UniformVectors(1, 10)
	rng.Reset()
	v2 := rng.UniformVectors(1, 10)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestExactTopK(t *testing.T) {
	base := [][]float32{{0}, {3}, {1}, {2}}

	res := ExactTopK([]float32{0.9}, base, 2, distance.SquaredL2)
	require.Len(t, res, 2)
	assert.Equal(t, uint32(2), res[0].ID)
	assert.Equal(t, uint32(0), res[1].ID)

	truth := ExactGroundTruth(base, [][]float32{{3}}, distance.SquaredL2, 10)
	assert.Equal(t, [][]uint32{{1, 3, 2, 0}}, truth)
}

func TestComputeRecall(t *testing.T) {
	assert.Equal(t, 1.0, ComputeRecall([]uint32{1, 2}, []uint32{2, 1}))
	assert.Equal(t, 0.5, ComputeRecall([]uint32{1, 2}, []uint32{1, 1}))
	assert.Equal(t, 0.0, ComputeRecall([]uint32{1}, nil))
}

type stubProvider struct {
	provider.Provider
}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Query(context.Context, provider.Handle, []float32, provider.Params, int) ([]provider.Neighbor, error) {
	return []provider.Neighbor{{ID: 9}}, nil
}

func TestFaultyProvider(t *testing.T) {
	f := NewFaultyProvider(stubProvider{})
	f.FailBuild = func(p provider.Params) bool { return true }
	f.FailQuery = func(call int64) bool { return call%2 == 0 }
	f.ExtraResults = 2

	_, err := f.Build(context.Background(), nil, distance.MetricL2, provider.Params{})
	var be *provider.BuildError
	require.True(t, errors.As(err, &be))
	assert.ErrorIs(t, err, ErrInjected)

	res, err := f.Query(context.Background(), nil, nil, provider.Params{}, 1)
	require.NoError(t, err)
	assert.Len(t, res, 3)

	_, err = f.Query(context.Background(), nil, nil, provider.Params{}, 1)
	assert.ErrorIs(t, err, ErrInjected)

	assert.Equal(t, int64(1), f.Builds())
	assert.Equal(t, int64(2), f.Queries())
}
