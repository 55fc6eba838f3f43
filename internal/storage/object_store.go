package storage

import (
	"context"
	"io"
)

// ObjectStore is the capability boundary to durable object storage. PutObject
// must be atomic from the caller's perspective: either the object is fully
// readable at key afterwards or the call fails with nothing left behind.
type ObjectStore interface {
	CreateBucket(ctx context.Context, bucket string) error

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	// DeleteObject removes an orphaned artifact; used by the reconciliation
	// path, never by the submission pipeline.
	DeleteObject(ctx context.Context, bucket, key string) error
}
