package driving

import (
	"context"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// ChatService answers questions grounded on the owner's documents
type ChatService interface {
	CreateConversation(ctx context.Context, ownerID, title string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]*domain.Conversation, error)

	// Messages returns the conversation history, oldest first
	Messages(ctx context.Context, ownerID, conversationID string) ([]*domain.Message, error)

	// Stream persists the user message and starts a grounded answer.
	// The caller must Close the returned stream.
	Stream(ctx context.Context, ownerID, conversationID, query string) (ChatStream, error)
}

// ChatStream is a pull iterator over answer chunks.
type ChatStream interface {
	// Next blocks until the next chunk. It returns io.EOF after the chunk
	// with IsFinal set, or the context error after cancellation.
	Next() (domain.ChatChunk, error)

	// Close stops generation and releases the upstream connection.
	Close() error
}
