package worker

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

// Worker processes tasks from the task queue.
// It runs the ingestion pipeline for each process_document task.
type Worker struct {
	taskQueue driven.TaskQueue
	ingestion driving.IngestionService
	scheduler driving.MaintenanceScheduler
	logger    *slog.Logger

	// Configuration
	concurrency    int
	dequeueTimeout time.Duration
	errorBackoff   time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Ingestion      driving.IngestionService
	Scheduler      driving.MaintenanceScheduler // Optional: started and stopped with the worker
	Logger         *slog.Logger
	Concurrency    int           // Number of concurrent task processors
	DequeueTimeout time.Duration // How long to wait for a task before checking again
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5 * time.Second
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		ingestion:      cfg.Ingestion,
		scheduler:      cfg.Scheduler,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
		errorBackoff:   time.Second,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	// Start the scheduler if provided
	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker. In-flight tasks finish first.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

func (w *Worker) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker goroutine started")

	for !w.stopping(ctx) {
		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			select {
			case <-time.After(w.errorBackoff):
			case <-w.stopCh:
			case <-ctx.Done():
			}
			continue
		}

		if task == nil {
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

// processTask runs one task and settles it on the queue:
// success acks, a transient failure is retried with backoff,
// anything else fails the task permanently.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "attempt", task.Attempts)
	logger.Info("processing task")

	startTime := time.Now()
	var err error

	switch task.Type {
	case domain.TaskTypeProcessDocument:
		err = w.handleProcessDocument(ctx, task, logger)
	case domain.TaskTypePurgeExpired:
		err = w.handlePurgeExpired(ctx, logger)
	default:
		err = fmt.Errorf("unknown task type: %s", task.Type)
	}

	duration := time.Since(startTime)

	if err == nil {
		logger.Info("task completed", "duration", duration)
		if ackErr := w.taskQueue.Ack(ctx, task.ID); ackErr != nil {
			logger.Error("failed to ack task", "ack_error", ackErr)
		}
		return
	}

	reason := domain.TruncateMessage(err.Error(), domain.MaxErrorMessageLength)

	if domain.IsTransient(err) && task.CanRetry() {
		logger.Warn("task failed, retrying",
			"duration", duration,
			"backoff", task.RetryBackoff(),
			"error", err,
		)
		if nackErr := w.taskQueue.Nack(ctx, task.ID, reason); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	logger.Error("task failed permanently",
		"duration", duration,
		"transient", domain.IsTransient(err),
		"error", err,
	)
	if failErr := w.taskQueue.Fail(ctx, task.ID, reason); failErr != nil {
		logger.Error("failed to fail task", "fail_error", failErr)
	}
}

// handleProcessDocument handles a process_document task.
func (w *Worker) handleProcessDocument(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	fileID := task.FileID()
	if fileID == "" {
		return fmt.Errorf("%w: file_id not found in task payload", domain.ErrInvalidInput)
	}
	if w.ingestion == nil {
		return errors.New("ingestion service not configured")
	}

	result, err := w.ingestion.Process(ctx, fileID)
	if err != nil {
		return err
	}

	logger.Info("document ingested",
		"file_id", fileID,
		"chunks", result.ChunkCount,
		"indexed", result.IndexedCount,
		"alerts", result.AlertCount,
	)
	return nil
}

// handlePurgeExpired runs an on-demand purge. Losing the lock to another
// instance means the purge is already happening, so the task succeeds.
func (w *Worker) handlePurgeExpired(ctx context.Context, logger *slog.Logger) error {
	if w.scheduler == nil {
		return errors.New("scheduler not configured")
	}

	result, err := w.scheduler.PurgeExpired(ctx)
	if errors.Is(err, domain.ErrLockNotAcquired) {
		logger.Info("purge already running elsewhere")
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("purge finished",
		"blobs", result.Blobs,
		"files", result.Files,
		"tasks", result.Tasks,
	)
	return nil
}

// Health returns health status of the worker.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
