package domain

import (
	"time"

	"github.com/google/uuid"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	return uuid.NewString()
}

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypeProcessDocument runs the ingestion pipeline for one file
	TaskTypeProcessDocument TaskType = "process_document"
	// TaskTypePurgeExpired removes expired documents, blobs and file records
	TaskTypePurgeExpired TaskType = "purge_expired"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// DefaultMaxAttempts caps how often a transient failure is retried.
const DefaultMaxAttempts = 3

// Task represents a background job to be processed by workers
type Task struct {
	// ID is the unique identifier for this task
	ID string `json:"id"`

	// Type identifies what kind of task this is
	Type TaskType `json:"type"`

	// OwnerID is the user this task works for (empty for maintenance tasks)
	OwnerID string `json:"owner_id"`

	// Payload contains task-specific data
	// For process_document: {"file_id": "..."}
	Payload map[string]string `json:"payload"`

	Status   TaskStatus `json:"status"`
	Priority int        `json:"priority"`

	// Attempts is how many times this task has been attempted
	Attempts int `json:"attempts"`

	// MaxAttempts is the maximum attempt count before giving up
	MaxAttempts int `json:"max_attempts"`

	// Error contains the last error message if failed
	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScheduledFor is when the task should be processed (for delayed retries)
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewTask creates a new task with default values
func NewTask(taskType TaskType, ownerID string, payload map[string]string) *Task {
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		OwnerID:      ownerID,
		Payload:      payload,
		Status:       TaskStatusPending,
		MaxAttempts:  DefaultMaxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewProcessDocumentTask creates a task to ingest an uploaded file
func NewProcessDocumentTask(ownerID, fileID string) *Task {
	return NewTask(TaskTypeProcessDocument, ownerID, map[string]string{
		"file_id": fileID,
	})
}

// NewPurgeExpiredTask creates a maintenance task to drop expired data
func NewPurgeExpiredTask() *Task {
	t := NewTask(TaskTypePurgeExpired, "", nil)
	t.MaxAttempts = 1
	return t
}

// FileID extracts the file_id from the payload (for process_document tasks)
func (t *Task) FileID() string {
	if t.Payload == nil {
		return ""
	}
	return t.Payload["file_id"]
}

// CanRetry returns true if the task can be retried
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// IsReady returns true if the task is ready to be processed
func (t *Task) IsReady() bool {
	return t.Status == TaskStatusPending && !time.Now().Before(t.ScheduledFor)
}

// MarkProcessing updates the task to processing state
func (t *Task) MarkProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
	t.Attempts++
}

// MarkCompleted updates the task to completed state
func (t *Task) MarkCompleted() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = ""
}

// MarkFailed updates the task to failed state
func (t *Task) MarkFailed(err string) {
	t.Status = TaskStatusFailed
	t.UpdatedAt = time.Now()
	t.Error = err
}

// RetryBackoff is the delay before the next attempt: 2s, 4s, 8s, capped at 5 minutes.
func (t *Task) RetryBackoff() time.Duration {
	backoff := time.Duration(1<<t.Attempts) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	return backoff
}

// Retry resets the task for retry with exponential backoff
func (t *Task) Retry(err string) {
	now := time.Now()
	t.Status = TaskStatusPending
	t.UpdatedAt = now
	t.Error = err
	t.ScheduledFor = now.Add(t.RetryBackoff())
}

// TaskResult represents the outcome of processing a task
type TaskResult struct {
	TaskID     string        `json:"task_id"`
	Success    bool          `json:"success"`
	Retryable  bool          `json:"retryable"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	ItemsCount int           `json:"items_count,omitempty"`
}
