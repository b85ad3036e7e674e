package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParams is returned for malformed or out-of-range parameters.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrClosed is returned when a closed handle is used.
	ErrClosed = errors.New("index handle closed")

	// ErrIncompatibleFormat is returned when a persisted index cannot be read.
	ErrIncompatibleFormat = errors.New("incompatible index format")

	// ErrUnknownProvider is returned by Registry lookups for unregistered names.
	ErrUnknownProvider = errors.New("unknown provider")
)

// BuildError indicates that index construction failed for a parameter set.
//
// The original underlying error can be accessed via errors.Unwrap.
type BuildError struct {
	Provider string
	Params   Params
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s [%s]: %v", e.Provider, e.Params, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// LoadError indicates that a persisted index could not be loaded.
//
// The original underlying error can be accessed via errors.Unwrap.
type LoadError struct {
	Provider string
	Path     string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s from %s: %v", e.Provider, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// QueryError indicates that a single query failed.
//
// The original underlying error can be accessed via errors.Unwrap.
type QueryError struct {
	Provider string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Provider, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// AsBuildError wraps err as a *BuildError unless it already is one.
func AsBuildError(name string, p Params, err error) error {
	if err == nil {
		return nil
	}
	var be *BuildError
	if errors.As(err, &be) {
		return err
	}
	return &BuildError{Provider: name, Params: p, Err: err}
}

// AsLoadError wraps err as a *LoadError unless it already is one.
func AsLoadError(name, path string, err error) error {
	if err == nil {
		return nil
	}
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{Provider: name, Path: path, Err: err}
}

// AsQueryError wraps err as a *QueryError unless it already is one.
func AsQueryError(name string, err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	return &QueryError{Provider: name, Err: err}
}
