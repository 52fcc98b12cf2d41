package driving

import (
	"context"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// MaintenanceScheduler runs the periodic expiry purge
type MaintenanceScheduler interface {
	// Start begins the purge loop. It returns immediately.
	Start(ctx context.Context) error

	// Stop ends the loop and waits for an in-flight purge.
	Stop()

	// PurgeExpired drops expired documents, blobs, file records and old tasks.
	// It returns domain.ErrLockNotAcquired when another instance is purging.
	PurgeExpired(ctx context.Context) (*domain.PurgeResult, error)
}
