package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.MessageStore = (*MessageStore)(nil)

// MessageStore implements driven.MessageStore using PostgreSQL
type MessageStore struct {
	db *DB
}

// NewMessageStore creates a new MessageStore
func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

// CreateConversation inserts a new conversation
func (s *MessageStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, owner_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, conv.ID, conv.OwnerID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	return err
}

// GetConversation retrieves a conversation by ID
func (s *MessageStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id).Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns an owner's conversations, most recently active first
func (s *MessageStore) ListConversations(ctx context.Context, ownerID string) ([]*domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations WHERE owner_id = $1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		if err := rows.Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

// AppendMessage stores a message and bumps the conversation's updated_at
func (s *MessageStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	citationsJSON, err := marshalCitations(msg.Citations)
	if err != nil {
		return err
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = $2 WHERE id = $1`,
			msg.ConversationID, createdAt)
		if err != nil {
			return err
		}
		if err := rowsAffected(result); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, citations, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, msg.ID, msg.ConversationID, string(msg.Role), msg.Content, citationsJSON, createdAt)
		return err
	})
}

// ListMessages returns messages oldest first
func (s *MessageStore) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, citations, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at, id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var role string
		var citationsJSON []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &citationsJSON, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = domain.Role(role)
		if len(citationsJSON) > 0 {
			if err := json.Unmarshal(citationsJSON, &msg.Citations); err != nil {
				return nil, err
			}
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

// marshalCitations encodes citations, mapping none to SQL NULL.
func marshalCitations(citations []domain.Citation) ([]byte, error) {
	if len(citations) == 0 {
		return nil, nil
	}
	return json.Marshal(citations)
}
