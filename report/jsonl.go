package report

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hupe1980/vecbench/blobstore"
	"github.com/hupe1980/vecbench/codec"
)

// maxLineBytes bounds a single JSON-lines record when reading.
const maxLineBytes = 4 << 20

// JSONLSink writes one JSON object per record and line.
type JSONLSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	codec  codec.Codec
	closer io.Closer
	closed bool
}

// NewJSONLSink creates a JSON-lines sink writing to w using c.
// A nil codec selects codec.Default. The caller keeps ownership of w.
func NewJSONLSink(w io.Writer, c codec.Codec) *JSONLSink {
	if c == nil {
		c = codec.Default
	}
	return &JSONLSink{w: bufio.NewWriter(w), codec: c}
}

// CreateJSONLFile creates (or truncates) path and returns a sink that
// closes the file on Close.
func CreateJSONLFile(path string, c codec.Codec) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s := NewJSONLSink(f, c)
	s.closer = f
	return s, nil
}

// Write encodes r and flushes it.
func (s *JSONLSink) Write(_ context.Context, r RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := encodeLine(s.w, s.codec, r); err != nil {
		return err
	}
	return s.w.Flush()
}

// Close flushes pending output.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func encodeLine(w io.Writer, c codec.Codec, r RunRecord) error {
	b, err := c.Marshal(r)
	if err != nil {
		return fmt.Errorf("report: encode record %s: %w", r.RunID, err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// LoadJSONL reads records written by JSONLSink. Blank lines are skipped.
func LoadJSONL(r io.Reader, c codec.Codec) ([]RunRecord, error) {
	if c == nil {
		c = codec.Default
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []RunRecord
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var rec RunRecord
		if err := c.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("report: line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// LoadJSONLFile reads a JSON-lines report from disk.
func LoadJSONLFile(path string, c codec.Codec) ([]RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadJSONL(f, c)
}

// LoadJSONLBlob reads a JSON-lines report from a blob store. Blobs uploaded
// with compression are decompressed transparently.
func LoadJSONLBlob(ctx context.Context, store blobstore.Store, name string, c codec.Codec) ([]RunRecord, error) {
	rc, err := store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	r, err := decompressReader(name, rc)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return LoadJSONL(r, c)
}

// LoadJSONLBlobs reads every JSON-lines report stored under prefix, in name
// order. It fails with blobstore.ErrNotFound when the prefix holds none.
func LoadJSONLBlobs(ctx context.Context, store blobstore.Store, prefix string, c codec.Codec) ([]RunRecord, error) {
	names, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var (
		records []RunRecord
		found   bool
	)
	for _, name := range names {
		if !strings.HasSuffix(name, ".jsonl") && !strings.HasSuffix(name, ".jsonl"+zstdSuffix) {
			continue
		}
		found = true
		rs, err := LoadJSONLBlob(ctx, store, name, c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		records = append(records, rs...)
	}
	if !found {
		return nil, fmt.Errorf("no reports under %q: %w", prefix, blobstore.ErrNotFound)
	}
	return records, nil
}
