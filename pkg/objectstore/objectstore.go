// Package objectstore implements the hot object store used for job inputs,
// results, and logs.
package objectstore

import (
	"context"
	"errors"
	"fmt"
)

// Store is the hot-storage interface the lifecycle components depend on.
// Keys follow the locator convention; buckets come from the record or
// configuration, never from ambient state.
type Store interface {
	// Get returns the full object body.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Put writes the object body.
	Put(ctx context.Context, bucket, key string, body []byte) error

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// Download copies the object to a local file path.
	Download(ctx context.Context, bucket, key, localPath string) error

	// Upload copies a local file to the object key.
	Upload(ctx context.Context, bucket, key, localPath string) error
}

// Sentinel errors for hot-store operations.
var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrThrottled indicates the request was rate limited by the store.
	ErrThrottled = errors.New("request throttled")

	// ErrUnavailable indicates the store service is unavailable.
	ErrUnavailable = errors.New("store unavailable")
)

// StoreError wraps store-specific errors with context.
type StoreError struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("objectstore %s: %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("objectstore %s: %s: %v", e.Op, e.Bucket, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
