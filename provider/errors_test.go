package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("out of memory")
	p := MustParseParams("m:4")

	err := AsBuildError("hnsw", p, cause)
	var be *BuildError
	assert.True(t, errors.As(err, &be))
	assert.Equal(t, "hnsw", be.Provider)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "m:4")

	// Already typed errors are passed through.
	assert.Same(t, err, AsBuildError("other", Params{}, err))
	assert.NoError(t, AsBuildError("hnsw", p, nil))

	lerr := AsLoadError("flat", "/tmp/x", ErrIncompatibleFormat)
	var le *LoadError
	assert.True(t, errors.As(lerr, &le))
	assert.ErrorIs(t, lerr, ErrIncompatibleFormat)

	qerr := AsQueryError("flat", ErrClosed)
	var qe *QueryError
	assert.True(t, errors.As(qerr, &qe))
	assert.ErrorIs(t, qerr, ErrClosed)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Register("b", func() Provider { return nil }))
	assert.NoError(t, r.Register("a", func() Provider { return nil }))
	assert.Error(t, r.Register("a", func() Provider { return nil }))

	assert.Equal(t, []string{"a", "b"}, r.Names())

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = r.Get("a")
	assert.NoError(t, err)
}
