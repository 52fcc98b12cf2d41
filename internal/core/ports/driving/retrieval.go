package driving

import (
	"context"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// RetrievalService indexes chunks and assembles grounded context
type RetrievalService interface {
	// Index embeds and upserts chunks for one file. Chunks whose embedding
	// failed are dropped; it fails only when nothing was indexed.
	Index(ctx context.Context, chunks []domain.Chunk, ownerID, fileID string) (int, error)

	// Search runs a hybrid query over the owner's documents
	Search(ctx context.Context, req domain.RetrievalRequest) ([]domain.SearchResult, error)

	// Retrieve searches the knowledge base and the owner's documents
	// concurrently with one shared embedding and formats the merged context.
	// A nil embedding skips retrieval.
	Retrieve(ctx context.Context, query, ownerID string, embedding []float32) (*domain.RetrievedContext, error)

	// BuildContext formats document results as citable blocks
	BuildContext(results []domain.SearchResult) string

	// BuildKnowledgeContext formats knowledge results as reference blocks
	BuildKnowledgeContext(results []domain.KnowledgeResult) string

	// DeleteFile removes every indexed chunk of a file
	DeleteFile(ctx context.Context, ownerID, fileID string) error
}

// KnowledgeService manages the permanent knowledge base
type KnowledgeService interface {
	Add(ctx context.Context, item *domain.KnowledgeItem) error

	// AddBatch embeds and stores items, returning how many were added
	AddBatch(ctx context.Context, items []domain.KnowledgeItem) (int, error)

	Search(ctx context.Context, query domain.KnowledgeQuery) ([]domain.KnowledgeResult, error)
	Delete(ctx context.Context, id string) error
	DeleteByCategory(ctx context.Context, category string) error
	Categories(ctx context.Context) ([]domain.CategoryCount, error)
}
