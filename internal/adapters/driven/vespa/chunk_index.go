package vespa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
)

// DocumentType is the schema holding per-user document chunks.
const DocumentType = "user_document"

// Verify interface compliance
var _ driven.ChunkIndex = (*ChunkIndex)(nil)

// ChunkIndex implements driven.ChunkIndex on the user_document schema
type ChunkIndex struct {
	*client
}

// NewChunkIndex creates a new Vespa-backed ChunkIndex
func NewChunkIndex(cfg Config) *ChunkIndex {
	return &ChunkIndex{client: newClient(cfg)}
}

// userDocumentFields is the user_document schema in feed format.
// Metadata is stored as a JSON string.
type userDocumentFields struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	Metadata  string    `json:"metadata"`
	OwnerID   string    `json:"owner_id"`
	FileID    string    `json:"file_id"`
	ExpiresAt int64     `json:"expires_at"`
}

type feedDocument[T any] struct {
	Fields T `json:"fields"`
}

// hitFields is what a user_document hit carries back.
type hitFields struct {
	userDocumentFields
	MatchFeatures map[string]float64 `json:"matchfeatures,omitempty"`
}

// Upsert writes documents one at a time. Documents the engine rejects are
// logged and skipped; a transport failure aborts the batch.
func (x *ChunkIndex) Upsert(ctx context.Context, docs []domain.IndexedDocument) (int, error) {
	accepted := 0
	var lastErr error
	for _, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return accepted, &domain.IndexError{Op: "upsert", Err: err}
		}
		doc := feedDocument[userDocumentFields]{Fields: userDocumentFields{
			ID:        d.ID,
			Content:   d.Content,
			Embedding: d.Embedding,
			Metadata:  string(meta),
			OwnerID:   d.OwnerID,
			FileID:    d.FileID,
			ExpiresAt: d.ExpiresAt.Unix(),
		}}

		err = x.do(ctx, http.MethodPost, x.docURL(DocumentType, d.ID), doc, nil)
		if err == nil {
			accepted++
			continue
		}
		var transient *domain.TransientIOError
		var serr *statusError
		if errors.As(err, &transient) || !errors.As(err, &serr) {
			return accepted, &domain.IndexError{Op: "upsert", Err: err}
		}
		x.logger.Warn("vespa rejected document", "id", d.ID, "error", err)
		lastErr = err
	}

	if accepted == 0 && lastErr != nil {
		return 0, &domain.IndexError{Op: "upsert", Err: lastErr}
	}
	return accepted, nil
}

// Search runs a query restricted to the filter's owner and optional file
func (x *ChunkIndex) Search(ctx context.Context, query domain.SearchQuery) ([]domain.SearchResult, error) {
	if query.Filter.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrInvalidInput)
	}
	topK := query.TopK
	if topK <= 0 {
		topK = domain.DefaultTopK
	}

	profile := rankProfile(query.Mode, len(query.Embedding) > 0)
	yql := buildDocumentYQL(profile, query.Text, query.Filter)

	resp, err := x.search(ctx, queryRequest(yql, query.Text, query.Embedding, profile, topK))
	if err != nil {
		return nil, &domain.IndexError{Op: "search", Err: err}
	}

	results := make([]domain.SearchResult, 0, len(resp.Root.Children))
	for _, hit := range resp.Root.Children {
		var f hitFields
		if err := json.Unmarshal(hit.Fields, &f); err != nil {
			return nil, &domain.IndexError{Op: "search", Err: fmt.Errorf("decode hit %s: %w", hit.ID, err)}
		}
		var meta domain.ChunkMetadata
		if f.Metadata != "" {
			if err := json.Unmarshal([]byte(f.Metadata), &meta); err != nil {
				x.logger.Warn("undecodable chunk metadata", "id", f.ID, "error", err)
			}
		}
		results = append(results, domain.SearchResult{
			Content:        f.Content,
			Metadata:       meta,
			RelevanceScore: hit.Relevance,
			VectorDistance: f.MatchFeatures["distance(field,embedding)"],
		})
	}
	return results, nil
}

func buildDocumentYQL(profile domain.SearchMode, text string, filter domain.DocumentFilter) string {
	conditions := []string{
		matchClause(profile, text),
		"owner_id contains " + quote(filter.OwnerID),
	}
	if filter.FileID != "" {
		conditions = append(conditions, "file_id contains "+quote(filter.FileID))
	}
	return fmt.Sprintf("select * from %s where %s", DocumentType, strings.Join(conditions, " and "))
}

// Delete removes every document matching the filter by selection.
// An empty filter is rejected.
func (x *ChunkIndex) Delete(ctx context.Context, filter domain.DocumentFilter) error {
	selection := documentSelection(filter)
	if selection == "" {
		return fmt.Errorf("%w: delete requires a filter", domain.ErrInvalidInput)
	}
	if err := x.do(ctx, http.MethodDelete, x.selectionURL(DocumentType, selection), nil, nil); err != nil {
		return &domain.IndexError{Op: "delete", Err: err}
	}
	return nil
}

func documentSelection(filter domain.DocumentFilter) string {
	var parts []string
	if filter.OwnerID != "" {
		parts = append(parts, fmt.Sprintf("%s.owner_id==%s", DocumentType, quote(filter.OwnerID)))
	}
	if filter.FileID != "" {
		parts = append(parts, fmt.Sprintf("%s.file_id==%s", DocumentType, quote(filter.FileID)))
	}
	if filter.ExpiredAt != nil {
		parts = append(parts, fmt.Sprintf("%s.expires_at<%d", DocumentType, filter.ExpiredAt.Unix()))
	}
	return strings.Join(parts, " and ")
}

// HealthCheck verifies the search engine is available
func (x *ChunkIndex) HealthCheck(ctx context.Context) error {
	return x.healthCheck(ctx)
}
