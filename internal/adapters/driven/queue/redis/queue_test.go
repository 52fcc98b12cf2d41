package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*miniredis.Miniredis, *Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q, err := NewQueue(context.Background(), client, "test-consumer")
	require.NoError(t, err)
	return mr, q
}

func TestNewQueue_RequiresClient(t *testing.T) {
	_, err := NewQueue(context.Background(), nil, "")
	assert.Error(t, err)
}

func TestNewQueue_GroupAlreadyExists(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := NewQueue(context.Background(), client, "a")
	require.NoError(t, err)
	_, err = NewQueue(context.Background(), client, "b")
	assert.NoError(t, err)
}

func TestQueue_EnqueueDequeueAck(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	task := domain.NewProcessDocumentTask("user-1", "file-1")
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, "file-1", got.FileID())
	assert.Equal(t, domain.TaskStatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)

	require.NoError(t, q.Ack(ctx, got.ID))

	stored, err := q.GetTask(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.PendingCount)
}

func TestQueue_DequeueEmpty(t *testing.T) {
	_, q := newTestQueue(t)

	got, err := q.DequeueWithTimeout(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueue_NackSchedulesRetry(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	task := domain.NewProcessDocumentTask("u", "f")
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, q.Nack(ctx, got.ID, "connection refused"))

	stored, err := q.GetTask(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, stored.Status)
	assert.Equal(t, "connection refused", stored.Error)
	assert.True(t, stored.ScheduledFor.After(time.Now()))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ScheduledCount)

	// not yet due
	again, err := q.DequeueWithTimeout(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestQueue_NackFailsWhenAttemptsExhausted(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	task := domain.NewProcessDocumentTask("u", "f")
	task.MaxAttempts = 1
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, q.Nack(ctx, got.ID, "timeout"))

	stored, err := q.GetTask(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
}

func TestQueue_Fail(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.NewProcessDocumentTask("u", "f")))
	got, err := q.DequeueWithTimeout(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, q.Fail(ctx, got.ID, "corrupt file"))

	stored, err := q.GetTask(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, "corrupt file", stored.Error)
}

func TestQueue_DelayedTaskPromotedWhenDue(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	task := domain.NewProcessDocumentTask("u", "f")
	task.ScheduledFor = time.Now().Add(-time.Second)
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
}

func TestQueue_UnknownTask(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	got, err := q.GetTask(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, q.Ack(ctx, "missing"), domain.ErrNotFound)
}

func TestQueue_PurgeTasks(t *testing.T) {
	_, q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, domain.NewProcessDocumentTask("u", "f")))
	got, err := q.DequeueWithTimeout(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NoError(t, q.Ack(ctx, got.ID))

	pending := domain.NewProcessDocumentTask("u", "g")
	require.NoError(t, q.Enqueue(ctx, pending))

	n, err := q.PurgeTasks(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	gone, err := q.GetTask(ctx, got.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := q.GetTask(ctx, pending.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestQueue_Ping(t *testing.T) {
	_, q := newTestQueue(t)
	assert.NoError(t, q.Ping(context.Background()))
	assert.NoError(t, q.Close())
}
