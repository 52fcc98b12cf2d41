package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
)

// Ensure retrievalService implements RetrievalService
var _ driving.RetrievalService = (*retrievalService)(nil)

// Context strings injected into the generation prompt
const (
	NoDocumentsFound  = "Aucune information pertinente n'a été trouvée dans vos documents."
	documentsHeader   = "Voici les informations pertinentes de vos documents:\n"
	knowledgeHeader   = "Voici des connaissances pertinentes de la base de connaissances:\n"
	defaultCategoryFR = "général"
)

// RetrievalConfig holds configuration for the retrieval service
type RetrievalConfig struct {
	Chunks    driven.ChunkIndex
	Knowledge driven.KnowledgeIndex // Optional: nil skips knowledge retrieval
	Embedder  driving.Embedder

	TopK        int           // results per search (default 5)
	DocumentTTL time.Duration // lifetime of indexed chunks (default 24h)

	Logger *slog.Logger
}

type retrievalService struct {
	chunks      driven.ChunkIndex
	knowledge   driven.KnowledgeIndex
	embedder    driving.Embedder
	topK        int
	documentTTL time.Duration
	logger      *slog.Logger
}

// NewRetrievalService creates a new RetrievalService
func NewRetrievalService(cfg RetrievalConfig) driving.RetrievalService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = domain.DefaultTopK
	}
	ttl := cfg.DocumentTTL
	if ttl <= 0 {
		ttl = domain.DefaultDocumentTTL
	}

	return &retrievalService{
		chunks:      cfg.Chunks,
		knowledge:   cfg.Knowledge,
		embedder:    cfg.Embedder,
		topK:        topK,
		documentTTL: ttl,
		logger:      logger,
	}
}

// Index embeds chunks and upserts those with a vector. Document IDs keep the
// chunk's position in the file, so dropped chunks leave gaps.
func (s *retrievalService) Index(ctx context.Context, chunks []domain.Chunk, ownerID, fileID string) (int, error) {
	if ownerID == "" || fileID == "" {
		return 0, fmt.Errorf("%w: owner and file are required", domain.ErrInvalidInput)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings := s.embedder.EmbedBatch(ctx, texts)

	expiresAt := time.Now().Add(s.documentTTL)
	docs := make([]domain.IndexedDocument, 0, len(chunks))
	for i, c := range chunks {
		if embeddings[i] == nil {
			continue
		}
		docs = append(docs, domain.IndexedDocument{
			ID:        domain.DocumentID(fileID, i),
			Content:   c.Content,
			Embedding: embeddings[i],
			Metadata:  c.Metadata,
			OwnerID:   ownerID,
			FileID:    fileID,
			ExpiresAt: expiresAt,
		})
	}

	if dropped := len(chunks) - len(docs); dropped > 0 {
		s.logger.Warn("dropped chunks without embedding", "file_id", fileID, "dropped", dropped, "total", len(chunks))
	}
	if len(docs) == 0 {
		return 0, domain.ErrNoDocumentsIndexed
	}

	n, err := s.chunks.Upsert(ctx, docs)
	if err != nil {
		return n, fmt.Errorf("index file %s: %w", fileID, err)
	}
	if n == 0 {
		return 0, domain.ErrNoDocumentsIndexed
	}

	s.logger.Info("indexed chunks", "file_id", fileID, "count", n)
	return n, nil
}

// Search runs a hybrid query over the owner's documents
func (s *retrievalService) Search(ctx context.Context, req domain.RetrievalRequest) ([]domain.SearchResult, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.topK
	}

	embedding := req.Embedding
	if embedding == nil {
		var err error
		embedding, err = s.embedder.Embed(ctx, req.Query)
		if err != nil {
			return nil, err
		}
	}

	return s.chunks.Search(ctx, domain.SearchQuery{
		Text:      req.Query,
		Embedding: embedding,
		Filter:    domain.DocumentFilter{OwnerID: req.OwnerID, FileID: req.FileID},
		TopK:      topK,
		Mode:      domain.SearchModeHybrid,
	})
}

// Retrieve runs the knowledge and document searches concurrently and joins
// them, knowledge first. Knowledge failures are logged and treated as empty.
func (s *retrievalService) Retrieve(ctx context.Context, query, ownerID string, embedding []float32) (*domain.RetrievedContext, error) {
	out := &domain.RetrievedContext{}
	if embedding == nil {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.knowledge != nil {
		g.Go(func() error {
			results, err := s.knowledge.Search(gctx, domain.KnowledgeQuery{
				Text:      query,
				Embedding: embedding,
				TopK:      s.topK,
			})
			if err != nil {
				s.logger.Warn("knowledge search failed", "error", err)
				return nil
			}
			out.Knowledge = results
			return nil
		})
	}

	g.Go(func() error {
		results, err := s.Search(gctx, domain.RetrievalRequest{
			Query:     query,
			OwnerID:   ownerID,
			TopK:      s.topK,
			Embedding: embedding,
		})
		if err != nil {
			return err
		}
		out.Documents = results
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	parts := make([]string, 0, 2)
	if kc := s.BuildKnowledgeContext(out.Knowledge); kc != "" {
		parts = append(parts, kc)
	}
	parts = append(parts, s.BuildContext(out.Documents))
	out.Text = strings.Join(parts, "\n\n")
	return out, nil
}

// BuildContext formats results as provenance-tagged blocks. An empty result
// list yields NoDocumentsFound rather than an empty string.
func (s *retrievalService) BuildContext(results []domain.SearchResult) string {
	if len(results) == 0 {
		return NoDocumentsFound
	}

	parts := make([]string, 0, len(results)+1)
	parts = append(parts, documentsHeader)
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("\n%s\nContenu: %s\n", SourceCitation(i+1, r.Metadata), r.Content))
	}
	return strings.Join(parts, "\n")
}

// BuildKnowledgeContext formats knowledge results. Empty input yields "".
func (s *retrievalService) BuildKnowledgeContext(results []domain.KnowledgeResult) string {
	if len(results) == 0 {
		return ""
	}

	parts := make([]string, 0, len(results)+1)
	parts = append(parts, knowledgeHeader)
	for i, r := range results {
		category := r.Item.Category
		if category == "" {
			category = defaultCategoryFR
		}
		parts = append(parts, fmt.Sprintf("\n[Connaissance %d: %s (Catégorie: %s)]\n%s\n", i+1, r.Item.Title, category, r.Item.Content))
	}
	return strings.Join(parts, "\n")
}

// DeleteFile removes every indexed chunk of a file
func (s *retrievalService) DeleteFile(ctx context.Context, ownerID, fileID string) error {
	return s.chunks.Delete(ctx, domain.DocumentFilter{OwnerID: ownerID, FileID: fileID})
}

// SourceCitation renders the citation tag of the idx-th source with the
// locator fields its source type carries.
func SourceCitation(idx int, m domain.ChunkMetadata) string {
	filename := m.Filename
	if filename == "" {
		filename = "unknown"
	}

	switch m.FileType {
	case domain.SourceTypeExcel:
		return fmt.Sprintf("[Source %d: %s, feuille '%s', cellule %s]", idx, filename, m.SheetName, m.CellRef)
	case domain.SourceTypePDF:
		return fmt.Sprintf("[Source %d: %s, page %d]", idx, filename, m.Page)
	case domain.SourceTypeWord:
		if m.ParagraphIndex != nil {
			return fmt.Sprintf("[Source %d: %s, paragraphe %d]", idx, filename, *m.ParagraphIndex)
		}
		if m.TableIndex != nil && m.RowIndex != nil {
			return fmt.Sprintf("[Source %d: %s, tableau %d, ligne %d]", idx, filename, *m.TableIndex, *m.RowIndex)
		}
	case domain.SourceTypePowerPoint:
		return fmt.Sprintf("[Source %d: %s, slide %d]", idx, filename, m.SlideNumber)
	case domain.SourceTypeCSV:
		return fmt.Sprintf("[Source %d: %s, ligne %d]", idx, filename, m.RowNumber)
	}
	return fmt.Sprintf("[Source %d: %s]", idx, filename)
}
