package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// MockChunkIndex is an in-memory ChunkIndex. Search matches query words
// against content and scores by the number of matching words.
type MockChunkIndex struct {
	mu   sync.RWMutex
	docs map[string]domain.IndexedDocument

	UpsertFn func(docs []domain.IndexedDocument) (int, error)
	SearchFn func(query domain.SearchQuery) ([]domain.SearchResult, error)
	DeleteErr error

	queries []domain.SearchQuery
	deletes []domain.DocumentFilter
}

// NewMockChunkIndex creates an empty index
func NewMockChunkIndex() *MockChunkIndex {
	return &MockChunkIndex{docs: make(map[string]domain.IndexedDocument)}
}

func (m *MockChunkIndex) Upsert(ctx context.Context, docs []domain.IndexedDocument) (int, error) {
	if m.UpsertFn != nil {
		return m.UpsertFn(docs)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return len(docs), nil
}

func (m *MockChunkIndex) Search(ctx context.Context, query domain.SearchQuery) ([]domain.SearchResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()

	if m.SearchFn != nil {
		return m.SearchFn(query)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []domain.SearchResult
	for _, d := range m.docs {
		if d.OwnerID != query.Filter.OwnerID {
			continue
		}
		if query.Filter.FileID != "" && d.FileID != query.Filter.FileID {
			continue
		}
		score := matchScore(d.Content, query.Text)
		if score == 0 {
			continue
		}
		results = append(results, domain.SearchResult{
			Content:        d.Content,
			Metadata:       d.Metadata,
			RelevanceScore: score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].Content < results[j].Content
	})
	if query.TopK > 0 && len(results) > query.TopK {
		results = results[:query.TopK]
	}
	return results, nil
}

func (m *MockChunkIndex) Delete(ctx context.Context, filter domain.DocumentFilter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, filter)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	for id, d := range m.docs {
		if filter.OwnerID != "" && d.OwnerID != filter.OwnerID {
			continue
		}
		if filter.FileID != "" && d.FileID != filter.FileID {
			continue
		}
		if filter.ExpiredAt != nil && !d.ExpiresAt.Before(*filter.ExpiredAt) {
			continue
		}
		delete(m.docs, id)
	}
	return nil
}

func (m *MockChunkIndex) HealthCheck(ctx context.Context) error {
	return nil
}

// Helper methods for testing

// Documents returns the indexed documents sorted by ID.
func (m *MockChunkIndex) Documents() []domain.IndexedDocument {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.IndexedDocument, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Queries returns every query the index received.
func (m *MockChunkIndex) Queries() []domain.SearchQuery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.SearchQuery(nil), m.queries...)
}

// Deletes returns every delete filter the index received.
func (m *MockChunkIndex) Deletes() []domain.DocumentFilter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.DocumentFilter(nil), m.deletes...)
}

// MockKnowledgeIndex is an in-memory KnowledgeIndex.
type MockKnowledgeIndex struct {
	mu    sync.RWMutex
	items map[string]domain.KnowledgeItem

	SearchFn func(query domain.KnowledgeQuery) ([]domain.KnowledgeResult, error)
}

// NewMockKnowledgeIndex creates an empty knowledge index
func NewMockKnowledgeIndex() *MockKnowledgeIndex {
	return &MockKnowledgeIndex{items: make(map[string]domain.KnowledgeItem)}
}

func (m *MockKnowledgeIndex) Upsert(ctx context.Context, items []domain.KnowledgeItem) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.items[it.ID] = it
	}
	return len(items), nil
}

func (m *MockKnowledgeIndex) Search(ctx context.Context, query domain.KnowledgeQuery) ([]domain.KnowledgeResult, error) {
	if m.SearchFn != nil {
		return m.SearchFn(query)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []domain.KnowledgeResult
	for _, it := range m.items {
		if query.Category != "" && it.Category != query.Category {
			continue
		}
		if !hasAllTags(it.Tags, query.Tags) {
			continue
		}
		score := matchScore(it.EmbeddingText(), query.Text)
		if score == 0 {
			continue
		}
		results = append(results, domain.KnowledgeResult{Item: it, RelevanceScore: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].Item.ID < results[j].Item.ID
	})
	if query.TopK > 0 && len(results) > query.TopK {
		results = results[:query.TopK]
	}
	return results, nil
}

func (m *MockKnowledgeIndex) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *MockKnowledgeIndex) DeleteByCategory(ctx context.Context, category string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, it := range m.items {
		if it.Category == category {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *MockKnowledgeIndex) Categories(ctx context.Context) ([]domain.CategoryCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, it := range m.items {
		counts[it.Category]++
	}
	out := make([]domain.CategoryCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, domain.CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// Items returns the stored items sorted by ID.
func (m *MockKnowledgeIndex) Items() []domain.KnowledgeItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.KnowledgeItem, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func matchScore(content, query string) float64 {
	content = strings.ToLower(content)
	var score float64
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(content, w) {
			score++
		}
	}
	return score
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
