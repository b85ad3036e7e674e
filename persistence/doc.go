// Package persistence implements the on-disk format shared by the reference
// index providers.
//
// A persisted index is a fixed little-endian Header followed by a body that is
// optionally compressed (zstd or lz4). The body ends with a CRC32 of its
// uncompressed bytes, so truncated or corrupted files are rejected on load
// instead of producing a silently wrong index.
//
// Files are written to a temporary sibling and atomically renamed into place.
package persistence
