package driven

import (
	"context"
	"time"
)

// EmbeddingService generates text embeddings from an external endpoint
type EmbeddingService interface {
	// Embed generates embeddings for multiple texts, one vector per input
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a search query
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// Dimensions returns the embedding dimension size
	Dimensions() int

	// Model returns the model name being used
	Model() string

	// HealthCheck verifies the embedding service is available
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the embedding service
	Close() error
}

// EmbeddingCache stores vectors keyed by a content hash of the embedded text.
type EmbeddingCache interface {
	// Get returns the cached vector and true on a hit.
	Get(ctx context.Context, key string) ([]float32, bool, error)

	// Set caches a vector with the given time-to-live.
	Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error
}
