package report

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// CSVSink writes one row per record, preceded by a header row.
type CSVSink struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	header bool
	closed bool
}

// NewCSVSink creates a CSV sink writing to w. The caller keeps ownership of w.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

// CreateCSVFile creates (or truncates) path and returns a sink that closes
// the file on Close.
func CreateCSVFile(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s := NewCSVSink(f)
	s.closer = f
	return s, nil
}

func (s *CSVSink) writeHeader() error {
	if s.header {
		return nil
	}
	s.header = true
	return s.w.Write(fieldNames)
}

// Write appends a row and flushes it.
func (s *CSVSink) Write(_ context.Context, r RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.writeHeader(); err != nil {
		return err
	}
	if err := s.w.Write(r.Strings()); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes pending output. A sink that saw no records still writes its header.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.writeHeader()
	s.w.Flush()
	if err == nil {
		err = s.w.Error()
	}
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
