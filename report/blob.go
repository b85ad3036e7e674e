package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/hupe1980/vecbench/blobstore"
	"github.com/hupe1980/vecbench/codec"
	"github.com/hupe1980/vecbench/resource"
	"github.com/klauspost/compress/zstd"
)

// zstdSuffix marks compressed report blobs.
const zstdSuffix = ".zst"

// BlobSinkOptions configures a BlobSink.
type BlobSinkOptions struct {
	// Prefix is prepended to the artifact names (e.g. "runs/").
	Prefix string
	// Compress stores artifacts zstd-compressed with a ".zst" suffix.
	Compress bool
	// Codec encodes the JSON-lines artifact. Default: codec.Default.
	Codec codec.Codec
	// Controller limits upload bandwidth. Nil means unlimited.
	Controller *resource.Controller
}

// BlobSink buffers records and uploads "<prefix>/<session>.csv" and
// "<prefix>/<session>.jsonl" to a blob store on Upload or Close.
type BlobSink struct {
	mu       sync.Mutex
	store    blobstore.Store
	session  string
	opts     BlobSinkOptions
	records  []RunRecord
	uploaded bool
}

// NewBlobSink creates a sink uploading the artifacts of session to store.
func NewBlobSink(store blobstore.Store, session string, optFns ...func(o *BlobSinkOptions)) *BlobSink {
	opts := BlobSinkOptions{Codec: codec.Default}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	return &BlobSink{store: store, session: session, opts: opts}
}

// Names returns the blob names the sink uploads to.
func (s *BlobSink) Names() (csvName, jsonlName string) {
	base := path.Join(s.opts.Prefix, s.session)
	csvName, jsonlName = base+".csv", base+".jsonl"
	if s.opts.Compress {
		csvName += zstdSuffix
		jsonlName += zstdSuffix
	}
	return csvName, jsonlName
}

// Write buffers a copy of r.
func (s *BlobSink) Write(_ context.Context, r RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploaded {
		return ErrClosed
	}
	s.records = append(s.records, r.Clone())
	return nil
}

// Upload encodes the buffered records and uploads both artifacts.
// Only the first successful call uploads.
func (s *BlobSink) Upload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploaded {
		return nil
	}

	csvData, err := s.encodeCSV()
	if err != nil {
		return err
	}
	jsonlData, err := s.encodeJSONL()
	if err != nil {
		return err
	}

	csvName, jsonlName := s.Names()
	if err := s.put(ctx, csvName, csvData); err != nil {
		return err
	}
	if err := s.put(ctx, jsonlName, jsonlData); err != nil {
		// A session is published with both artifacts or none.
		if derr := s.store.Delete(ctx, csvName); derr != nil {
			return errors.Join(err, fmt.Errorf("failed to remove %s: %w", csvName, derr))
		}
		return err
	}

	s.uploaded = true
	return nil
}

// Close uploads the artifacts if Upload has not been called.
func (s *BlobSink) Close() error {
	return s.Upload(context.Background())
}

func (s *BlobSink) encodeCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fieldNames); err != nil {
		return nil, err
	}
	for _, r := range s.records {
		if err := w.Write(r.Strings()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func (s *BlobSink) encodeJSONL() ([]byte, error) {
	var buf bytes.Buffer
	for _, r := range s.records {
		if err := encodeLine(&buf, s.opts.Codec, r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (s *BlobSink) put(ctx context.Context, name string, data []byte) error {
	if s.opts.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return err
		}
		data = enc.EncodeAll(data, nil)
		_ = enc.Close()
	}

	var r io.Reader = bytes.NewReader(data)
	if s.opts.Controller != nil {
		r = resource.NewRateLimitedReader(ctx, r, s.opts.Controller)
	}
	return s.store.Put(ctx, name, r)
}

func decompressReader(name string, r io.Reader) (io.ReadCloser, error) {
	if !strings.HasSuffix(name, zstdSuffix) {
		return io.NopCloser(r), nil
	}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("report: open zstd stream: %w", err)
	}
	return dec.IOReadCloser(), nil
}
