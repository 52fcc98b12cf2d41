// Package postgres implements the task queue on the tasks table with
// SELECT ... FOR UPDATE SKIP LOCKED, for deployments that run without Redis.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
)

var _ driven.TaskQueue = (*Queue)(nil)

const (
	// defaultPollInterval is how often an empty queue is re-checked while
	// DequeueWithTimeout waits.
	defaultPollInterval = 250 * time.Millisecond

	// defaultStaleAfter is how long a task may stay processing before another
	// worker takes it over.
	defaultStaleAfter = 5 * time.Minute
)

const taskColumns = `id, type, owner_id, payload, status, priority,
	attempts, max_attempts, error, created_at, updated_at,
	started_at, completed_at, scheduled_for`

// Queue implements TaskQueue on PostgreSQL.
type Queue struct {
	db           *sql.DB
	pollInterval time.Duration
	staleAfter   time.Duration
	now          func() time.Time
}

// NewQueue creates a queue on db. The tasks table comes from the embedded
// schema applied by postgres.DB.InitSchema.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{
		db:           db,
		pollInterval: defaultPollInterval,
		staleAfter:   defaultStaleAfter,
		now:          time.Now,
	}
}

// Enqueue inserts a task. A task scheduled in the future is not handed out before it is due.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO tasks (id, type, owner_id, payload, status, priority,
			attempts, max_attempts, error, created_at, updated_at, scheduled_for)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		task.ID, task.Type, task.OwnerID, payload, task.Status, task.Priority,
		task.Attempts, task.MaxAttempts, task.Error, task.CreatedAt, task.UpdatedAt, task.ScheduledFor,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// DequeueWithTimeout claims the next due task, polling until timeout.
// It returns nil, nil when nothing became available.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout time.Duration) (*domain.Task, error) {
	deadline := q.now().Add(timeout)
	for {
		task, err := q.claim(ctx)
		if err != nil || task != nil {
			return task, err
		}

		wait := pollWait(q.now(), deadline, q.pollInterval)
		if wait <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// pollWait is the sleep before the next poll, never past the deadline.
func pollWait(now, deadline time.Time, interval time.Duration) time.Duration {
	remaining := deadline.Sub(now)
	if remaining < interval {
		return remaining
	}
	return interval
}

// claim marks one due pending task, or one abandoned processing task, as
// processing and returns it.
func (q *Queue) claim(ctx context.Context) (*domain.Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := q.now()
	row := tx.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE (status = $1 AND scheduled_for <= $2)
		   OR (status = $3 AND started_at < $4)
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		domain.TaskStatusPending, now, domain.TaskStatusProcessing, now.Add(-q.staleAfter),
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select task: %w", err)
	}

	task.MarkProcessing()
	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET status = $1, started_at = $2, updated_at = $2, attempts = $3
		WHERE id = $4`,
		task.Status, task.StartedAt, task.Attempts, task.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("mark task processing: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return task, nil
}

// Ack marks a task completed.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	return q.update(ctx, taskID, func(t *domain.Task) { t.MarkCompleted() })
}

// Nack schedules a delayed retry while attempts remain, otherwise fails the task.
func (q *Queue) Nack(ctx context.Context, taskID, reason string) error {
	return q.update(ctx, taskID, func(t *domain.Task) {
		if !t.CanRetry() {
			t.MarkFailed(reason)
			return
		}
		t.Retry(reason)
	})
}

// Fail marks a task failed for good.
func (q *Queue) Fail(ctx context.Context, taskID, reason string) error {
	return q.update(ctx, taskID, func(t *domain.Task) { t.MarkFailed(reason) })
}

// update applies a state transition to the stored task under a row lock.
func (q *Queue) update(ctx context.Context, taskID string, apply func(*domain.Task)) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	task, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get task %s: %w", taskID, err)
	}

	apply(task)
	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET status = $1, error = $2, updated_at = $3, completed_at = $4, scheduled_for = $5
		WHERE id = $6`,
		task.Status, task.Error, task.UpdatedAt, task.CompletedAt, task.ScheduledFor, task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	return tx.Commit()
}

// GetTask loads a task. It returns nil, nil when the task does not exist.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := scanTask(q.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return task, nil
}

// PurgeTasks deletes finished tasks last updated before cutoff.
func (q *Queue) PurgeTasks(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE status IN ($1, $2) AND updated_at < $3`,
		domain.TaskStatusCompleted, domain.TaskStatusFailed, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge tasks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Stats counts due, delayed and in-flight tasks.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $1 AND scheduled_for <= $3),
			COUNT(*) FILTER (WHERE status = $1 AND scheduled_for > $3),
			COUNT(*) FILTER (WHERE status = $2)
		FROM tasks`,
		domain.TaskStatusPending, domain.TaskStatusProcessing, q.now(),
	).Scan(&stats.PendingCount, &stats.ScheduledCount, &stats.ProcessingCount)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

// Ping checks database connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

// Close is a no-op; the connection pool belongs to the caller.
func (q *Queue) Close() error {
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task                   domain.Task
		payload                []byte
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(
		&task.ID, &task.Type, &task.OwnerID, &payload, &task.Status, &task.Priority,
		&task.Attempts, &task.MaxAttempts, &task.Error, &task.CreatedAt, &task.UpdatedAt,
		&startedAt, &completedAt, &task.ScheduledFor,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &task.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	return &task, nil
}
