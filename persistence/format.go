package persistence

import (
	"errors"
	"fmt"
)

const (
	// MagicNumber identifies vecbench index files (ASCII: "VBI1").
	MagicNumber = 0x56424931
	// Version is the current file format version.
	Version = 1

	// MaxDimension bounds the dimension accepted on load.
	MaxDimension = 1 << 16
)

// Kind identifies the index layout stored in the body.
type Kind uint8

const (
	KindFlat Kind = 1
	KindHNSW Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "flat"
	case KindHNSW:
		return "hnsw"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Compression selects the body compression.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
	CompressionLZ4  Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

var (
	// ErrFormat is the parent of every format violation detected on load.
	ErrFormat = errors.New("unrecognized index format")

	ErrInvalidMagic       = fmt.Errorf("%w: invalid magic number", ErrFormat)
	ErrInvalidVersion     = fmt.Errorf("%w: unsupported version", ErrFormat)
	ErrInvalidKind        = fmt.Errorf("%w: unexpected index kind", ErrFormat)
	ErrInvalidCompression = fmt.Errorf("%w: unknown compression", ErrFormat)
	ErrChecksumMismatch   = fmt.Errorf("%w: checksum mismatch", ErrFormat)
	ErrCorrupt            = fmt.Errorf("%w: corrupt header", ErrFormat)
)

// Header is the 24-byte uncompressed header at the start of every index file.
type Header struct {
	Magic       uint32
	Version     uint32
	Kind        Kind
	Compression Compression
	Metric      uint8
	Padding     uint8
	Dimension   uint32
	Count       uint64
}

func (h *Header) validate(kind Kind) error {
	if h.Magic != MagicNumber {
		return fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, h.Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("%w: got %d", ErrInvalidVersion, h.Version)
	}
	if h.Kind != kind {
		return fmt.Errorf("%w: got %s, want %s", ErrInvalidKind, h.Kind, kind)
	}
	if h.Compression > CompressionLZ4 {
		return fmt.Errorf("%w: %s", ErrInvalidCompression, h.Compression)
	}
	if h.Dimension == 0 || h.Dimension > MaxDimension {
		return fmt.Errorf("%w: dimension %d", ErrCorrupt, h.Dimension)
	}
	return nil
}
