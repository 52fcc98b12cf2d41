package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
)

// Ensure Scheduler implements MaintenanceScheduler
var _ driving.MaintenanceScheduler = (*Scheduler)(nil)

// PurgeLockName is the distributed lock that serializes purges across instances.
const PurgeLockName = "purge_expired"

// Scheduler runs the periodic expiry purge.
// It runs on worker nodes.
//
// For multi-worker deployments, configure a DistributedLock so only one
// instance purges per interval.
type Scheduler struct {
	chunks driven.ChunkIndex
	blobs  driven.BlobStore
	files  driven.FileStore
	queue  driven.TaskQueue
	lock   driven.DistributedLock
	logger *slog.Logger

	// Internal state
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration

	lockTTL       time.Duration
	taskRetention time.Duration
	now           func() time.Time
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Chunks        driven.ChunkIndex
	Blobs         driven.BlobStore
	Files         driven.FileStore
	TaskQueue     driven.TaskQueue       // Optional: purges finished tasks when set
	Lock          driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger        *slog.Logger
	Interval      time.Duration // How often to purge (default: 1h)
	LockTTL       time.Duration // TTL for the distributed lock (default: 5m)
	TaskRetention time.Duration // Age after which finished tasks are purged (default: 7 days)
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}

	retention := cfg.TaskRetention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	return &Scheduler{
		chunks:        cfg.Chunks,
		blobs:         cfg.Blobs,
		files:         cfg.Files,
		queue:         cfg.TaskQueue,
		lock:          cfg.Lock,
		logger:        logger,
		interval:      interval,
		lockTTL:       lockTTL,
		taskRetention: retention,
		now:           time.Now,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", "interval", s.interval)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for an in-flight purge to finish
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	result, err := s.PurgeExpired(ctx)
	switch {
	case errors.Is(err, domain.ErrLockNotAcquired):
		s.logger.Debug("purge lock held by another instance, skipping cycle")
	case err != nil:
		s.logger.Error("purge failed", "error", err)
	default:
		s.logger.Info("purge completed",
			"blobs", result.Blobs,
			"files", result.Files,
			"tasks", result.Tasks,
		)
	}
}

// PurgeExpired drops every expired document, blob and file record, then
// old finished tasks. Each step runs even when an earlier one fails; the
// first error is returned.
func (s *Scheduler) PurgeExpired(ctx context.Context) (*domain.PurgeResult, error) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, PurgeLockName, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire purge lock: %w", err)
		}
		if !acquired {
			return nil, domain.ErrLockNotAcquired
		}
		defer func() {
			if err := s.lock.Release(ctx, PurgeLockName); err != nil {
				s.logger.Warn("failed to release purge lock", "error", err)
			}
		}()
	}

	now := s.now()
	result := &domain.PurgeResult{}
	var firstErr error
	record := func(step string, err error) {
		s.logger.Error("purge step failed", "step", step, "error", err)
		if firstErr == nil {
			firstErr = fmt.Errorf("purge %s: %w", step, err)
		}
	}

	if s.chunks != nil {
		if err := s.chunks.Delete(ctx, domain.DocumentFilter{ExpiredAt: &now}); err != nil {
			record("documents", err)
		} else {
			result.Documents = true
		}
	}

	if s.blobs != nil {
		n, err := s.blobs.DeleteExpired(ctx, now)
		if err != nil {
			record("blobs", err)
		}
		result.Blobs = n
	}

	if s.files != nil {
		n, err := s.files.MarkExpired(ctx, now)
		if err != nil {
			record("files", err)
		}
		result.Files = n
	}

	if s.queue != nil {
		n, err := s.queue.PurgeTasks(ctx, now.Add(-s.taskRetention))
		if err != nil {
			record("tasks", err)
		}
		result.Tasks = n
	}

	return result, firstErr
}
