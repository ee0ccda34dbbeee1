// Package storage is the object-store collaborator. Keys follow the fixed
// layout `<bucket>/<identifier>/...` plus the mutable `<bucket>/latest/...`
// alias; everything above this package works in those terms only.
package storage

import (
	"context"
	"io"
	"time"
)

type ObjectInfo struct {
	Key      string
	Size     int64
	Modified time.Time
}

// Store is one endpoint plus credentials; buckets are chosen per call.
type Store interface {
	Put(ctx context.Context, bucket, key string, reader io.Reader, size int64) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// List returns every object under prefix, recursively.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	// TopLevel returns the first-level key prefixes of the bucket, without
	// trailing slashes.
	TopLevel(ctx context.Context, bucket string) ([]string, error)
	// RemovePrefix deletes every object under prefix.
	RemovePrefix(ctx context.Context, bucket, prefix string) error
	// CopyPrefix server-side copies every object under srcPrefix to the
	// same key with dstPrefix substituted.
	CopyPrefix(ctx context.Context, bucket, srcPrefix, dstPrefix string) error
}
