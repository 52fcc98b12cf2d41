package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// TaskQueue handles background task queuing (Redis Streams).
type TaskQueue interface {
	// Enqueue adds a task. Tasks scheduled in the future are held back until due.
	Enqueue(ctx context.Context, task *domain.Task) error

	// DequeueWithTimeout retrieves the next available task, waiting up to timeout.
	// Returns nil, nil if timeout is reached with no tasks available.
	// The returned task is marked processing and hidden from other workers.
	DequeueWithTimeout(ctx context.Context, timeout time.Duration) (*domain.Task, error)

	// Ack acknowledges successful completion of a task.
	Ack(ctx context.Context, taskID string) error

	// Nack returns a task for a delayed retry, or fails it once its attempts are exhausted.
	Nack(ctx context.Context, taskID string, reason string) error

	// Fail marks a task permanently failed without retrying.
	Fail(ctx context.Context, taskID string, reason string) error

	// GetTask retrieves a task by ID. Returns nil, nil if it does not exist.
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)

	// PurgeTasks removes completed and failed tasks last updated before cutoff.
	PurgeTasks(ctx context.Context, cutoff time.Time) (int, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)

	// Ping checks if the queue backend is healthy.
	Ping(ctx context.Context) error

	// Close cleans up resources.
	Close() error
}

// QueueStats contains queue statistics
type QueueStats struct {
	PendingCount    int64 `json:"pending_count"`
	ScheduledCount  int64 `json:"scheduled_count"`
	ProcessingCount int64 `json:"processing_count"`
}
