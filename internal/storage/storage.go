package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

var ErrInvalidKey = errors.New("invalid storage key")

// FileStorage abstracts object persistence. Objects are addressed by bucket
// and key, mirroring the hosted storage buckets the app writes to.
type FileStorage interface {
	// Save persists content under bucket/key.
	Save(ctx context.Context, bucket, key string, reader io.Reader, contentType string) error
	// Open returns a reader for the stored object.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, bucket, key string) error
}

// validateKey rejects bucket names and keys that could address anything
// outside the bucket.
func validateKey(bucket, key string) error {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return ErrInvalidKey
	}
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
