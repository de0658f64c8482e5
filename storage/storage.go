package storage

import (
	"context"
	"io"
	"time"
)

// FileInfo contains metadata about a stored object.
type FileInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// Storage defines the object storage operations. Missing objects are
// reported as NOT_FOUND application errors.
type Storage interface {
	// Upload writes body to path, replacing any existing object.
	Upload(ctx context.Context, path string, body io.Reader, contentType string) error

	// Download returns a reader for the object at path. The caller closes it.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the object at path. Missing objects are not an error.
	Delete(ctx context.Context, path string) error

	Exists(ctx context.Context, path string) (bool, error)

	// URL returns where the object at path lives, for logs and reports.
	URL(path string) string

	// List returns every object whose path starts with prefix, sorted by path.
	List(ctx context.Context, prefix string) ([]FileInfo, error)
}
