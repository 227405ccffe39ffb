// Package storage defines the Backend interface for asset object storage.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by StatObject and GetObject when no object exists
// at the requested key.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object without its body.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Backend is the interface for asset object storage backends.
// Implementations handle raw object I/O (S3, local filesystem).
// Metadata (entity records, presence flags) is handled separately by
// the postgres store.
type Backend interface {
	// GetObject retrieves an object by key with optional range support.
	// If offset=0 and length=0, the entire object is returned.
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)

	// PutObject uploads content to the given key.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// StatObject returns size, content type and last-modified time for the
	// object at key, or ErrNotFound.
	StatObject(ctx context.Context, key string) (*ObjectInfo, error)

	// DeleteObject removes an object by key. Deleting a missing object is
	// not an error.
	DeleteObject(ctx context.Context, key string) error

	// CopyObject copies an object from srcKey to dstKey.
	CopyObject(ctx context.Context, srcKey, dstKey string) error

	// ObjectExists checks if an object exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("s3", "local").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
