package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
	// Metadata is attached to the object where the store supports it.
	Metadata map[string]string
}

// ObjectStore holds snapshot files. Keys are slash separated and relative to
// the store's own prefix.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// DeletePrefix removes every object under prefix and reports how many went.
func DeletePrefix(ctx context.Context, store ObjectStore, prefix string) (int, error) {
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, object := range objects {
		if err := store.Delete(ctx, object.Key); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
