// Package blobstore provides the artifact store that benchmark reports are
// uploaded to and baselines are read from.
//
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, atomic writes via rename
//   - MemoryStore: in-memory, for tests
//   - s3.Store: Amazon S3 with multipart uploads (blobstore/s3)
//   - minio.Store: MinIO and other S3-compatible stores (blobstore/minio)
//
// # Custom Implementations
//
//	type Store interface {
//	    Put(ctx, name, r) error                  // Atomic write
//	    Get(ctx, name) (io.ReadCloser, error)    // ErrNotFound when missing
//	    List(ctx, prefix) ([]string, error)      // Sorted names
//	    Delete(ctx, name) error                  // Missing names are not an error
//	}
package blobstore
