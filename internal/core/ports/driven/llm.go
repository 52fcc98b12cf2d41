package driven

import (
	"context"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// LLMService generates chat completions
type LLMService interface {
	// Chat starts a streaming completion for the ordered messages.
	// The caller must Close the returned stream.
	Chat(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerationOptions) (ChatStream, error)

	// Model returns the model name being used
	Model() string

	// Ping verifies the LLM service is available
	Ping(ctx context.Context) error

	// Close releases resources held by the LLM service
	Close() error
}

// ChatStream is a pull iterator over generated deltas.
type ChatStream interface {
	// Next blocks until the next delta arrives. It returns io.EOF once the
	// delta with Done set has been consumed, or the context error after cancellation.
	Next() (domain.GenerationDelta, error)

	// Close stops consuming and releases the underlying connection.
	Close() error
}
