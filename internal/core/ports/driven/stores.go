package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// FileStore persists uploaded file records (PostgreSQL)
type FileStore interface {
	Save(ctx context.Context, file *domain.File) error
	Get(ctx context.Context, id string) (*domain.File, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.File, error)

	// UpdateStatus sets status and error message without touching other fields.
	UpdateStatus(ctx context.Context, id string, status domain.FileStatus, errorMessage string) error

	// SaveTemporalMetadata replaces the file's temporal summary.
	SaveTemporalMetadata(ctx context.Context, id string, meta *domain.TemporalMetadata) error

	Delete(ctx context.Context, id string) error

	// MarkExpired flags files whose expiry is before now and returns how many changed.
	MarkExpired(ctx context.Context, now time.Time) (int, error)
}

// AlertStore persists anomaly findings (PostgreSQL)
type AlertStore interface {
	// SaveBatch stores alerts in one transaction.
	SaveBatch(ctx context.Context, alerts []*domain.Alert) error
	ListByFile(ctx context.Context, fileID string) ([]*domain.Alert, error)
	ListByOwner(ctx context.Context, ownerID string, unreadOnly bool) ([]*domain.Alert, error)
	// MarkRead flags an alert read. Alerts of other owners are reported as domain.ErrNotFound.
	MarkRead(ctx context.Context, ownerID, id string) error
	DeleteByFile(ctx context.Context, fileID string) error
}

// MessageStore persists conversations and their messages (PostgreSQL)
type MessageStore interface {
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]*domain.Conversation, error)

	// AppendMessage stores a message and bumps the conversation's updated_at.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns messages oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error)
}
