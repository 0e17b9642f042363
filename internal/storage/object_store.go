package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStore holds uploads and colorized artifacts. Objects are addressed by
// bucket and key. PutObject must be atomic: a concurrent GetObject sees either
// the previous object or the complete new one.
type ObjectStore interface {
	CreateBucket(ctx context.Context, bucket string) error

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	DeleteObject(ctx context.Context, bucket, key string) error

	Exists(ctx context.Context, bucket, key string) (bool, error)
}
