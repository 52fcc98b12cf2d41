package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
)

// Ensure knowledgeService implements KnowledgeService
var _ driving.KnowledgeService = (*knowledgeService)(nil)

type knowledgeService struct {
	index    driven.KnowledgeIndex
	embedder driving.Embedder
	logger   *slog.Logger
}

// NewKnowledgeService creates a new KnowledgeService
func NewKnowledgeService(index driven.KnowledgeIndex, embedder driving.Embedder, logger *slog.Logger) driving.KnowledgeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &knowledgeService{index: index, embedder: embedder, logger: logger}
}

// Add embeds one item and stores it
func (s *knowledgeService) Add(ctx context.Context, item *domain.KnowledgeItem) error {
	if err := prepareKnowledgeItem(item); err != nil {
		return err
	}

	vec, err := s.embedder.Embed(ctx, item.EmbeddingText())
	if err != nil {
		return fmt.Errorf("embed knowledge %q: %w", item.Title, err)
	}
	item.Embedding = vec

	if _, err := s.index.Upsert(ctx, []domain.KnowledgeItem{*item}); err != nil {
		return err
	}
	s.logger.Info("added knowledge", "id", item.ID, "title", item.Title, "category", item.Category)
	return nil
}

// AddBatch embeds and stores items. Invalid items and items whose embedding
// failed are skipped and logged.
func (s *knowledgeService) AddBatch(ctx context.Context, items []domain.KnowledgeItem) (int, error) {
	valid := make([]domain.KnowledgeItem, 0, len(items))
	for i := range items {
		if err := prepareKnowledgeItem(&items[i]); err != nil {
			s.logger.Warn("skipping knowledge item", "index", i, "error", err)
			continue
		}
		valid = append(valid, items[i])
	}

	texts := make([]string, len(valid))
	for i := range valid {
		texts[i] = valid[i].EmbeddingText()
	}
	vectors := s.embedder.EmbedBatch(ctx, texts)

	ready := valid[:0]
	for i := range valid {
		if vectors[i] == nil {
			s.logger.Warn("skipping knowledge item without embedding", "title", valid[i].Title)
			continue
		}
		valid[i].Embedding = vectors[i]
		ready = append(ready, valid[i])
	}
	if len(ready) == 0 {
		return 0, nil
	}

	n, err := s.index.Upsert(ctx, ready)
	if err != nil {
		return n, err
	}
	s.logger.Info("added knowledge batch", "count", n, "submitted", len(items))
	return n, nil
}

// Search runs a hybrid knowledge query, embedding the text when the caller
// supplied no vector
func (s *knowledgeService) Search(ctx context.Context, query domain.KnowledgeQuery) ([]domain.KnowledgeResult, error) {
	if strings.TrimSpace(query.Text) == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}
	if query.TopK <= 0 {
		query.TopK = domain.DefaultTopK
	}
	if query.Embedding == nil {
		vec, err := s.embedder.Embed(ctx, query.Text)
		if err != nil {
			return nil, err
		}
		query.Embedding = vec
	}
	return s.index.Search(ctx, query)
}

func (s *knowledgeService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}
	return s.index.Delete(ctx, id)
}

func (s *knowledgeService) DeleteByCategory(ctx context.Context, category string) error {
	if category == "" {
		return fmt.Errorf("%w: category is required", domain.ErrInvalidInput)
	}
	return s.index.DeleteByCategory(ctx, category)
}

func (s *knowledgeService) Categories(ctx context.Context) ([]domain.CategoryCount, error) {
	return s.index.Categories(ctx)
}

func prepareKnowledgeItem(item *domain.KnowledgeItem) error {
	item.Title = strings.TrimSpace(item.Title)
	item.Category = strings.TrimSpace(item.Category)
	switch {
	case item.Title == "":
		return fmt.Errorf("%w: knowledge title is required", domain.ErrInvalidInput)
	case strings.TrimSpace(item.Content) == "":
		return fmt.Errorf("%w: knowledge content is required", domain.ErrInvalidInput)
	case item.Category == "":
		return fmt.Errorf("%w: knowledge category is required", domain.ErrInvalidInput)
	}
	if item.ID == "" {
		item.ID = domain.GenerateID()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	return nil
}
