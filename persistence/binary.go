package persistence

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

var byteOrder = binary.LittleEndian

// Writer writes little-endian primitives and tracks a running CRC32.
type Writer struct {
	w    io.Writer
	hash hash.Hash32
	buf  [8]byte
}

func newWriter(w io.Writer) *Writer {
	h := crc32.NewIEEE()
	return &Writer{w: io.MultiWriter(w, h), hash: h}
}

// WriteUint32 writes v.
func (bw *Writer) WriteUint32(v uint32) error {
	byteOrder.PutUint32(bw.buf[:4], v)
	_, err := bw.w.Write(bw.buf[:4])
	return err
}

// WriteUint64 writes v.
func (bw *Writer) WriteUint64(v uint64) error {
	byteOrder.PutUint64(bw.buf[:8], v)
	_, err := bw.w.Write(bw.buf[:8])
	return err
}

// WriteFloat32s writes the raw values of vec.
func (bw *Writer) WriteFloat32s(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	return binary.Write(bw.w, byteOrder, vec)
}

// WriteUint32s writes a length-prefixed uint32 slice.
func (bw *Writer) WriteUint32s(s []uint32) error {
	if err := bw.WriteUint32(uint32(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	return binary.Write(bw.w, byteOrder, s)
}

// Reader reads little-endian primitives and tracks a running CRC32.
type Reader struct {
	r    io.Reader
	hash hash.Hash32
	buf  [8]byte
}

func newReader(r io.Reader) *Reader {
	h := crc32.NewIEEE()
	return &Reader{r: io.TeeReader(r, h), hash: h}
}

// ReadUint32 reads a uint32.
func (br *Reader) ReadUint32() (uint32, error) {
	if _, err := io.ReadFull(br.r, br.buf[:4]); err != nil {
		return 0, err
	}
	return byteOrder.Uint32(br.buf[:4]), nil
}

// ReadUint64 reads a uint64.
func (br *Reader) ReadUint64() (uint64, error) {
	if _, err := io.ReadFull(br.r, br.buf[:8]); err != nil {
		return 0, err
	}
	return byteOrder.Uint64(br.buf[:8]), nil
}

// ReadFloat32sInto fills vec.
func (br *Reader) ReadFloat32sInto(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	return binary.Read(br.r, byteOrder, vec)
}

// ReadUint32s reads a length-prefixed uint32 slice of at most limit elements.
func (br *Reader) ReadUint32s(limit int) ([]uint32, error) {
	n, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	if int64(n) > int64(limit) {
		return nil, fmt.Errorf("%w: slice length %d exceeds %d", ErrCorrupt, n, limit)
	}
	if n == 0 {
		return nil, nil
	}
	s := make([]uint32, n)
	if err := binary.Read(br.r, byteOrder, s); err != nil {
		return nil, err
	}
	return s, nil
}
