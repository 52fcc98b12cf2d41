// Package redis implements the task queue on Redis Streams with a consumer
// group, a sorted set for delayed retries and a JSON record per task.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

const (
	streamKey    = "scm:tasks"
	groupName    = "scm:workers"
	delayedKey   = "scm:tasks:delayed"
	taskPrefix   = "scm:task:"
	messageField = "task_id"

	// taskTTL bounds how long task records outlive their last update
	taskTTL = 7 * 24 * time.Hour

	// claimIdle is how long a delivered message may stay unacked before
	// another worker takes it over
	claimIdle = 5 * time.Minute
)

var _ driven.TaskQueue = (*Queue)(nil)

// Queue implements TaskQueue using Redis Streams.
type Queue struct {
	client   *redis.Client
	consumer string
}

// NewQueue creates the queue and its consumer group. consumer should be
// unique per worker process; empty picks hostname-pid.
func NewQueue(ctx context.Context, client *redis.Client, consumer string) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if consumer == "" {
		host, _ := os.Hostname()
		consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	err := client.XGroupCreateMkStream(ctx, streamKey, groupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return &Queue{client: client, consumer: consumer}, nil
}

// Enqueue stores the task record and publishes it, or parks it in the
// delayed set when it is scheduled for later.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}

	pipe := q.client.TxPipeline()
	if err := q.save(ctx, pipe, task); err != nil {
		return err
	}
	q.schedule(ctx, pipe, task)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}
	return nil
}

// DequeueWithTimeout promotes due retries, reclaims abandoned messages,
// then blocks on the stream for up to timeout.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout time.Duration) (*domain.Task, error) {
	_ = q.promoteDue(ctx)

	if task, err := q.claimAbandoned(ctx); err == nil && task != nil {
		return task, nil
	}

	if timeout <= 0 {
		timeout = time.Second
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    groupName,
		Consumer: q.consumer,
		Streams:  []string{streamKey, ">"},
		Count:    1,
		Block:    timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	return q.start(ctx, streams[0].Messages[0])
}

// Ack marks the task completed and drops its stream message.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	return q.finish(ctx, taskID, func(t *domain.Task, _ redis.Pipeliner) {
		t.MarkCompleted()
	})
}

// Nack schedules a delayed retry while attempts remain, otherwise fails the task.
func (q *Queue) Nack(ctx context.Context, taskID, reason string) error {
	return q.finish(ctx, taskID, func(t *domain.Task, pipe redis.Pipeliner) {
		if !t.CanRetry() {
			t.MarkFailed(reason)
			return
		}
		t.Retry(reason)
		pipe.ZAdd(ctx, delayedKey, redis.Z{Score: float64(t.ScheduledFor.Unix()), Member: t.ID})
	})
}

// Fail marks the task failed for good.
func (q *Queue) Fail(ctx context.Context, taskID, reason string) error {
	return q.finish(ctx, taskID, func(t *domain.Task, _ redis.Pipeliner) {
		t.MarkFailed(reason)
	})
}

// GetTask loads a task record.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.Get(ctx, taskPrefix+taskID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return &task, nil
}

// PurgeTasks deletes finished task records last updated before cutoff.
func (q *Queue) PurgeTasks(ctx context.Context, cutoff time.Time) (int, error) {
	var purged int
	iter := q.client.Scan(ctx, 0, taskPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, ":msg") {
			continue
		}
		task, err := q.GetTask(ctx, strings.TrimPrefix(key, taskPrefix))
		if err != nil || task == nil {
			continue
		}
		finished := task.Status == domain.TaskStatusCompleted || task.Status == domain.TaskStatusFailed
		if finished && task.UpdatedAt.Before(cutoff) {
			if err := q.client.Del(ctx, key).Err(); err == nil {
				purged++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return purged, fmt.Errorf("scan tasks: %w", err)
	}
	return purged, nil
}

// Stats reports stream length, delayed retries and unacked deliveries.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}

	n, err := q.client.XLen(ctx, streamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("stream length: %w", err)
	}
	stats.PendingCount = n

	if stats.ScheduledCount, err = q.client.ZCard(ctx, delayedKey).Result(); err != nil {
		return nil, fmt.Errorf("delayed count: %w", err)
	}

	if pending, err := q.client.XPending(ctx, streamKey, groupName).Result(); err == nil {
		stats.ProcessingCount = pending.Count
	}
	return stats, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op; the client is shared with other adapters.
func (q *Queue) Close() error {
	return nil
}

func (q *Queue) save(ctx context.Context, pipe redis.Pipeliner, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	pipe.Set(ctx, taskPrefix+task.ID, data, taskTTL)
	return nil
}

func (q *Queue) schedule(ctx context.Context, pipe redis.Pipeliner, task *domain.Task) {
	if task.ScheduledFor.After(time.Now()) {
		pipe.ZAdd(ctx, delayedKey, redis.Z{Score: float64(task.ScheduledFor.Unix()), Member: task.ID})
		return
	}
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{
			messageField: task.ID,
			"type":       string(task.Type),
			"owner_id":   task.OwnerID,
		},
	})
}

// start marks the delivered task processing and remembers its message id.
func (q *Queue) start(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, _ := msg.Values[messageField].(string)
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		q.client.XAck(ctx, streamKey, groupName, msg.ID)
		q.client.XDel(ctx, streamKey, msg.ID)
		return nil, nil
	}

	task.MarkProcessing()
	pipe := q.client.TxPipeline()
	if err := q.save(ctx, pipe, task); err != nil {
		return nil, err
	}
	pipe.Set(ctx, taskPrefix+task.ID+":msg", msg.ID, taskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("start task %s: %w", task.ID, err)
	}
	return task, nil
}

// finish acks the stream message and persists the task after update runs.
func (q *Queue) finish(ctx context.Context, taskID string, update func(*domain.Task, redis.Pipeliner)) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}

	msgKey := taskPrefix + taskID + ":msg"
	msgID, err := q.client.Get(ctx, msgKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("message id for %s: %w", taskID, err)
	}

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, streamKey, groupName, msgID)
		pipe.XDel(ctx, streamKey, msgID)
	}
	update(task, pipe)
	if err := q.save(ctx, pipe, task); err != nil {
		return err
	}
	pipe.Del(ctx, msgKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("finish task %s: %w", taskID, err)
	}
	return nil
}

// promoteDue moves delayed tasks whose time has come onto the stream.
func (q *Queue) promoteDue(ctx context.Context) error {
	ids, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}

	for _, id := range ids {
		// ZRem doubles as a claim so two workers never promote the same task
		removed, err := q.client.ZRem(ctx, delayedKey, id).Result()
		if err != nil || removed == 0 {
			continue
		}
		task, err := q.GetTask(ctx, id)
		if err != nil || task == nil {
			continue
		}
		task.ScheduledFor = time.Now()
		pipe := q.client.TxPipeline()
		q.schedule(ctx, pipe, task)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("promote task %s: %w", id, err)
		}
	}
	return nil
}

// claimAbandoned takes over a message another consumer left unacked for too long.
func (q *Queue) claimAbandoned(ctx context.Context) (*domain.Task, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   streamKey,
		Group:    groupName,
		Consumer: q.consumer,
		MinIdle:  claimIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return q.start(ctx, msgs[0])
}
