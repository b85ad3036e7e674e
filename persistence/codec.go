package persistence

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Encode writes h followed by the body produced by fn.
// Magic and Version are filled in.
func Encode(w io.Writer, h Header, fn func(*Writer) error) error {
	h.Magic = MagicNumber
	h.Version = Version
	if err := binary.Write(w, byteOrder, &h); err != nil {
		return err
	}

	cw, err := compressor(w, h.Compression)
	if err != nil {
		return err
	}

	bw := newWriter(cw)
	if err := fn(bw); err != nil {
		_ = cw.Close()
		return err
	}

	sum := bw.hash.Sum32()
	var trailer [4]byte
	byteOrder.PutUint32(trailer[:], sum)
	if _, err := cw.Write(trailer[:]); err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

// Decode reads a header of the expected kind and hands the body to fn.
// The checksum trailer is verified after fn returns.
func Decode(r io.Reader, kind Kind, fn func(*Header, *Reader) error) error {
	var h Header
	if err := binary.Read(r, byteOrder, &h); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		return err
	}
	if err := h.validate(kind); err != nil {
		return err
	}

	dr, err := decompressor(r, h.Compression)
	if err != nil {
		return err
	}
	defer dr.Close()

	br := newReader(dr)
	if err := fn(&h, br); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated body: %w", ErrCorrupt, err)
		}
		return err
	}

	want := br.hash.Sum32()
	var trailer [4]byte
	if _, err := io.ReadFull(dr, trailer[:]); err != nil {
		return fmt.Errorf("%w: missing trailer: %w", ErrCorrupt, err)
	}
	if got := byteOrder.Uint32(trailer[:]); got != want {
		return fmt.Errorf("%w: got 0x%08x, want 0x%08x", ErrChecksumMismatch, got, want)
	}
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func compressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCompression, c)
	}
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

func decompressor(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionZstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{d}, nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCompression, c)
	}
}

// SaveToFile writes an index file atomically.
func SaveToFile(filename string, h Header, fn func(*Writer) error) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Write to a temp file in the same directory so the rename is atomic.
	tmp, err := os.CreateTemp(dir, filepath.Base(filename)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := Encode(buf, h, fn); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	tmpName = ""
	return nil
}

// LoadFromFile reads an index file of the expected kind.
func LoadFromFile(filename string, kind Kind, fn func(*Header, *Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	return Decode(bufio.NewReaderSize(f, 256*1024), kind, fn)
}
