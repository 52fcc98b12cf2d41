package driving

import "context"

// Embedder produces embeddings through the content-hash cache.
type Embedder interface {
	// Embed returns the vector for text. A failed endpoint call returns an
	// error and leaves the cache untouched.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text. Failed positions are nil and
	// never abort the rest of the batch.
	EmbedBatch(ctx context.Context, texts []string) [][]float32
}
