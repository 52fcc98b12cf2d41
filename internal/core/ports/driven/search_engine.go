package driven

import (
	"context"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// ChunkIndex stores per-user document chunks for hybrid retrieval (Vespa)
type ChunkIndex interface {
	// Upsert writes documents, replacing any with the same ID.
	// Returns the number of documents accepted by the engine.
	Upsert(ctx context.Context, docs []domain.IndexedDocument) (int, error)

	// Search runs a hybrid lexical and vector query restricted by the filter.
	Search(ctx context.Context, query domain.SearchQuery) ([]domain.SearchResult, error)

	// Delete removes every document matching the filter.
	Delete(ctx context.Context, filter domain.DocumentFilter) error

	// HealthCheck verifies the search engine is available
	HealthCheck(ctx context.Context) error
}

// KnowledgeIndex stores the permanent knowledge base
type KnowledgeIndex interface {
	// Upsert writes knowledge items. Items must carry an embedding.
	Upsert(ctx context.Context, items []domain.KnowledgeItem) (int, error)

	// Search runs a hybrid query with optional category and tag filters.
	Search(ctx context.Context, query domain.KnowledgeQuery) ([]domain.KnowledgeResult, error)

	// Delete removes one item by ID.
	Delete(ctx context.Context, id string) error

	// DeleteByCategory removes every item in a category.
	DeleteByCategory(ctx context.Context, category string) error

	// Categories lists distinct categories with their item counts.
	Categories(ctx context.Context) ([]domain.CategoryCount, error)
}
