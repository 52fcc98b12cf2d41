package vespa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
)

// KnowledgeType is the schema holding the permanent knowledge base.
const KnowledgeType = "knowledge"

// Verify interface compliance
var _ driven.KnowledgeIndex = (*KnowledgeIndex)(nil)

// KnowledgeIndex implements driven.KnowledgeIndex on the knowledge schema
type KnowledgeIndex struct {
	*client
}

// NewKnowledgeIndex creates a new Vespa-backed KnowledgeIndex
func NewKnowledgeIndex(cfg Config) *KnowledgeIndex {
	return &KnowledgeIndex{client: newClient(cfg)}
}

type knowledgeFields struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory,omitempty"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Metadata    string    `json:"metadata,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   int64     `json:"created_at"`

	MatchFeatures map[string]float64 `json:"matchfeatures,omitempty"`
}

// Upsert writes knowledge items. Any failure aborts the batch.
func (k *KnowledgeIndex) Upsert(ctx context.Context, items []domain.KnowledgeItem) (int, error) {
	for i, item := range items {
		if len(item.Embedding) == 0 {
			return i, &domain.IndexError{Op: "upsert", Err: fmt.Errorf("knowledge item %s has no embedding", item.ID)}
		}
		var meta string
		if len(item.Metadata) > 0 {
			data, err := json.Marshal(item.Metadata)
			if err != nil {
				return i, &domain.IndexError{Op: "upsert", Err: err}
			}
			meta = string(data)
		}
		doc := feedDocument[knowledgeFields]{Fields: knowledgeFields{
			ID:          item.ID,
			Category:    item.Category,
			Subcategory: item.Subcategory,
			Title:       item.Title,
			Content:     item.Content,
			Embedding:   item.Embedding,
			Metadata:    meta,
			Tags:        item.Tags,
			CreatedAt:   item.CreatedAt.Unix(),
		}}
		if err := k.do(ctx, http.MethodPost, k.docURL(KnowledgeType, item.ID), doc, nil); err != nil {
			return i, &domain.IndexError{Op: "upsert", Err: err}
		}
	}
	return len(items), nil
}

// Search runs a query with optional category and tag filters
func (k *KnowledgeIndex) Search(ctx context.Context, query domain.KnowledgeQuery) ([]domain.KnowledgeResult, error) {
	topK := query.TopK
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	profile := rankProfile(domain.SearchModeHybrid, len(query.Embedding) > 0)

	conditions := []string{matchClause(profile, query.Text)}
	if query.Category != "" {
		conditions = append(conditions, "category contains "+quote(query.Category))
	}
	for _, tag := range query.Tags {
		conditions = append(conditions, "tags contains "+quote(tag))
	}
	yql := fmt.Sprintf("select * from %s where %s", KnowledgeType, strings.Join(conditions, " and "))

	resp, err := k.search(ctx, queryRequest(yql, query.Text, query.Embedding, profile, topK))
	if err != nil {
		return nil, &domain.IndexError{Op: "search", Err: err}
	}

	results := make([]domain.KnowledgeResult, 0, len(resp.Root.Children))
	for _, hit := range resp.Root.Children {
		var f knowledgeFields
		if err := json.Unmarshal(hit.Fields, &f); err != nil {
			return nil, &domain.IndexError{Op: "search", Err: fmt.Errorf("decode hit %s: %w", hit.ID, err)}
		}
		item := domain.KnowledgeItem{
			ID:          f.ID,
			Category:    f.Category,
			Subcategory: f.Subcategory,
			Title:       f.Title,
			Content:     f.Content,
			Tags:        f.Tags,
		}
		if f.CreatedAt > 0 {
			item.CreatedAt = time.Unix(f.CreatedAt, 0).UTC()
		}
		if f.Metadata != "" {
			if err := json.Unmarshal([]byte(f.Metadata), &item.Metadata); err != nil {
				k.logger.Warn("undecodable knowledge metadata", "id", f.ID, "error", err)
			}
		}
		results = append(results, domain.KnowledgeResult{
			Item:           item,
			RelevanceScore: hit.Relevance,
			VectorDistance: f.MatchFeatures["distance(field,embedding)"],
		})
	}
	return results, nil
}

// Delete removes one item by ID. Unknown IDs report domain.ErrNotFound.
func (k *KnowledgeIndex) Delete(ctx context.Context, id string) error {
	target := k.docURL(KnowledgeType, id)
	if err := k.do(ctx, http.MethodGet, target, nil, nil); err != nil {
		var serr *statusError
		if errors.As(err, &serr) && serr.Code == http.StatusNotFound {
			return domain.ErrNotFound
		}
		return &domain.IndexError{Op: "delete", Err: err}
	}
	if err := k.do(ctx, http.MethodDelete, target, nil, nil); err != nil {
		return &domain.IndexError{Op: "delete", Err: err}
	}
	return nil
}

// DeleteByCategory removes every item in a category
func (k *KnowledgeIndex) DeleteByCategory(ctx context.Context, category string) error {
	selection := fmt.Sprintf("%s.category==%s", KnowledgeType, quote(category))
	if err := k.do(ctx, http.MethodDelete, k.selectionURL(KnowledgeType, selection), nil, nil); err != nil {
		return &domain.IndexError{Op: "delete", Err: err}
	}
	return nil
}

// Categories lists distinct categories with item counts using a grouping query
func (k *KnowledgeIndex) Categories(ctx context.Context) ([]domain.CategoryCount, error) {
	req := map[string]any{
		"yql":  fmt.Sprintf("select * from %s where true | all(group(category) each(output(count())))", KnowledgeType),
		"hits": 0,
	}
	resp, err := k.search(ctx, req)
	if err != nil {
		return nil, &domain.IndexError{Op: "categories", Err: err}
	}

	var out []domain.CategoryCount
	var walk func(hits []searchHit) error
	walk = func(hits []searchHit) error {
		for _, h := range hits {
			if strings.HasPrefix(h.ID, "group:") && h.Value != "" {
				var fields map[string]float64
				if err := json.Unmarshal(h.Fields, &fields); err != nil {
					return err
				}
				out = append(out, domain.CategoryCount{Category: h.Value, Count: int(fields["count()"])})
				continue
			}
			if err := walk(h.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(resp.Root.Children); err != nil {
		return nil, &domain.IndexError{Op: "categories", Err: err}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}
