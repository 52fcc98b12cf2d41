package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates singleton work, such as the expiry purge,
// across worker instances.
type DistributedLock interface {
	// Acquire takes the named lock for ttl. It returns false, nil when another
	// holder already owns it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Release drops the lock if this instance holds it. Safe to call when the lock has expired.
	Release(ctx context.Context, name string) error

	// Extend pushes the expiry of a held lock out to ttl from now.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
