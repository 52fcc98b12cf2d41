package driven

import (
	"context"
	"time"
)

// BlobStore keeps uploaded file bytes.
type BlobStore interface {
	// Put stores data under key. The blob becomes eligible for purge after expiresAt.
	Put(ctx context.Context, key string, data []byte, contentType string, expiresAt time.Time) error

	// Get returns the bytes stored under key, or domain.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a blob. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteExpired removes blobs whose expiry is before now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
