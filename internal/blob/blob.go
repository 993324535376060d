// Package blob offloads payloads too large for the document store.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested key does not exist in the bucket.
var ErrNotFound = errors.New("blob not found")

// Store is a bucket/key byte store.
type Store interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}
