// Package blobstore abstracts the object stores snapshots are exported to.
//
// Keys are slash separated. Implementations must be safe for concurrent use;
// snapshot export uploads segments in parallel.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// Store is a flat key/blob store.
type Store interface {
	// Put stores size bytes read from r under key, replacing any existing
	// blob. A blob is visible only once Put returns successfully.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Get opens the blob under key for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the keys starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
