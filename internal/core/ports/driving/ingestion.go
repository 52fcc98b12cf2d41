package driving

import (
	"context"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// IngestionService runs the ingestion work unit for one uploaded file
type IngestionService interface {
	// Process moves the file through PROCESSING to COMPLETED or FAILED.
	// The returned error is the failure cause; domain.IsTransient decides
	// whether the caller retries.
	Process(ctx context.Context, fileID string) (*domain.IngestionResult, error)
}

// FileService handles the upload surface and per-file reads
type FileService interface {
	// Upload validates, stores and enqueues a file for ingestion
	Upload(ctx context.Context, req domain.UploadRequest) (*domain.File, error)

	// Get returns one of the owner's files
	Get(ctx context.Context, ownerID, fileID string) (*domain.File, error)

	// List returns the owner's files, newest first
	List(ctx context.Context, ownerID string) ([]*domain.File, error)

	// Delete removes the blob, the record and every indexed chunk of the file
	Delete(ctx context.Context, ownerID, fileID string) error

	// Alerts lists the anomaly findings of a file
	Alerts(ctx context.Context, ownerID, fileID string) ([]*domain.Alert, error)

	// OwnerAlerts lists every alert of the owner, optionally unread only
	OwnerAlerts(ctx context.Context, ownerID string, unreadOnly bool) ([]*domain.Alert, error)

	// MarkAlertRead flags one alert as read
	MarkAlertRead(ctx context.Context, ownerID, alertID string) error

	// Temporal returns the stored temporal summary of a tabular file
	Temporal(ctx context.Context, ownerID, fileID string) (*domain.TemporalMetadata, error)

	// ConfigureTemporal stores a date-column override and reprocesses the file
	ConfigureTemporal(ctx context.Context, ownerID, fileID string, cfg domain.TemporalConfig) (*domain.File, error)
}
