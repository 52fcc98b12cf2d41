package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
)

// Ensure chatService implements ChatService
var _ driving.ChatService = (*chatService)(nil)

const (
	// DefaultConversationTitle names conversations created without a title.
	DefaultConversationTitle = "Nouvelle conversation"

	// GenerationErrorPrefix starts the chunk emitted when generation fails.
	GenerationErrorPrefix = "\n\n⚠️ Erreur lors de la génération de la réponse: "

	systemPreamble = "Tu es un assistant IA spécialisé en Supply Chain. " +
		"Tu aides les professionnels (Opérationnels et Directeurs) à analyser " +
		"leurs données et contextes opérationnels.\n\n"

	groundingRules = "RÈGLES IMPORTANTES:\n" +
		"1. Réponds UNIQUEMENT en te basant sur les sources fournies ci-dessous.\n" +
		"2. Cite TOUJOURS tes sources avec le format exact fourni (fichier, feuille, cellule/page).\n" +
		"3. Si l'information n'est pas dans les sources, dis clairement: " +
		"\"Je n'ai pas trouvé d'information sur ce sujet dans vos documents.\"\n" +
		"4. N'invente JAMAIS d'informations.\n" +
		"5. Privilégie les réponses concises et précises.\n\n"

	ungroundedRules = "Réponds toujours en français et sois précis et factuel. " +
		"Si tu ne trouves pas d'information pertinente, indique-le clairement " +
		"plutôt que d'inventer une réponse."
)

// ChatConfig holds configuration for the chat service
type ChatConfig struct {
	Messages  driven.MessageStore
	Retrieval driving.RetrievalService
	Embedder  driving.Embedder
	LLM       driven.LLMService
	Options   domain.GenerationOptions
	Logger    *slog.Logger
}

type chatService struct {
	messages  driven.MessageStore
	retrieval driving.RetrievalService
	embedder  driving.Embedder
	llm       driven.LLMService
	options   domain.GenerationOptions
	logger    *slog.Logger
}

// NewChatService creates a new ChatService
func NewChatService(cfg ChatConfig) driving.ChatService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &chatService{
		messages:  cfg.Messages,
		retrieval: cfg.Retrieval,
		embedder:  cfg.Embedder,
		llm:       cfg.LLM,
		options:   cfg.Options,
		logger:    logger,
	}
}

func (s *chatService) CreateConversation(ctx context.Context, ownerID, title string) (*domain.Conversation, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultConversationTitle
	}

	now := time.Now()
	conv := &domain.Conversation{
		ID:        domain.GenerateID(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *chatService) ListConversations(ctx context.Context, ownerID string) ([]*domain.Conversation, error) {
	return s.messages.ListConversations(ctx, ownerID)
}

func (s *chatService) Messages(ctx context.Context, ownerID, conversationID string) ([]*domain.Message, error) {
	if _, err := s.conversation(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	return s.messages.ListMessages(ctx, conversationID)
}

// conversation loads a conversation, hiding those of other owners
func (s *chatService) conversation(ctx context.Context, ownerID, id string) (*domain.Conversation, error) {
	conv, err := s.messages.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return conv, nil
}

// Stream persists the user message, retrieves context with one shared query
// embedding and starts generation. Retrieval failures degrade to an
// ungrounded answer; a generation failure becomes the final chunk.
func (s *chatService) Stream(ctx context.Context, ownerID, conversationID, query string) (driving.ChatStream, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: message content is required", domain.ErrInvalidInput)
	}
	if _, err := s.conversation(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}

	history, err := s.messages.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	userMsg := &domain.Message{
		ID:             domain.GenerateID(),
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        query,
		CreatedAt:      time.Now(),
	}
	if err := s.messages.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}
	history = append(history, userMsg)

	retrieved := s.retrieve(ctx, query, ownerID)

	citations := make([]domain.Citation, 0, len(retrieved.Documents))
	for _, r := range retrieved.Documents {
		citations = append(citations, domain.CitationFor(r))
	}

	stream := &chatStream{
		ctx:            ctx,
		service:        s,
		conversationID: conversationID,
		citations:      citations,
	}

	if s.llm == nil {
		stream.startErr = fmt.Errorf("%w: no generation backend configured", domain.ErrServiceUnavailable)
		return stream, nil
	}

	upstream, err := s.llm.Chat(ctx, BuildPrompt(history, retrieved.Text), s.options)
	if err != nil {
		s.logger.Error("generation failed to start", "conversation_id", conversationID, "error", err)
		stream.startErr = err
		return stream, nil
	}
	stream.upstream = upstream
	return stream, nil
}

func (s *chatService) retrieve(ctx context.Context, query, ownerID string) *domain.RetrievedContext {
	empty := &domain.RetrievedContext{}
	if s.embedder == nil || s.retrieval == nil {
		return empty
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed, answering without retrieval", "error", err)
		return empty
	}

	retrieved, err := s.retrieval.Retrieve(ctx, query, ownerID, embedding)
	if err != nil {
		s.logger.Warn("retrieval failed, answering without context", "error", err)
		return empty
	}
	return retrieved
}

// BuildPrompt returns the system message followed by the full history.
// An empty context selects the ungrounded instructions.
func BuildPrompt(history []*domain.Message, contextText string) []domain.ChatMessage {
	system := systemPreamble
	if contextText != "" {
		system += groundingRules + contextText + "\n"
	} else {
		system += ungroundedRules
	}

	out := make([]domain.ChatMessage, 0, len(history)+1)
	out = append(out, domain.ChatMessage{Role: domain.RoleSystem, Content: system})
	for _, m := range history {
		out = append(out, domain.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// chatStream forwards upstream deltas one at a time. The assistant message
// is written once, when the final chunk is produced.
type chatStream struct {
	ctx            context.Context
	service        *chatService
	conversationID string
	citations      []domain.Citation

	upstream driven.ChatStream
	startErr error

	answer   strings.Builder
	finished bool
	closed   bool
}

func (c *chatStream) Next() (domain.ChatChunk, error) {
	if c.finished {
		return domain.ChatChunk{}, io.EOF
	}
	if c.closed {
		return domain.ChatChunk{}, context.Canceled
	}
	if err := c.ctx.Err(); err != nil {
		return domain.ChatChunk{}, err
	}

	if c.upstream == nil {
		return c.fail(c.startErr), nil
	}

	for {
		delta, err := c.upstream.Next()
		switch {
		case errors.Is(err, io.EOF):
			return c.finish(domain.ChatChunk{IsFinal: true, Citations: c.finalCitations()}), nil
		case err != nil:
			if ctxErr := c.ctx.Err(); ctxErr != nil {
				return domain.ChatChunk{}, ctxErr
			}
			c.service.logger.Error("generation stream failed", "conversation_id", c.conversationID, "error", err)
			return c.fail(err), nil
		case delta.Done:
			return c.finish(domain.ChatChunk{Content: delta.Content, IsFinal: true, Citations: c.finalCitations()}), nil
		case delta.Content == "":
			continue
		}

		c.answer.WriteString(delta.Content)
		return domain.ChatChunk{Content: delta.Content}, nil
	}
}

func (c *chatStream) finalCitations() []domain.Citation {
	if len(c.citations) == 0 {
		return nil
	}
	return c.citations
}

func (c *chatStream) fail(err error) domain.ChatChunk {
	return c.finish(domain.ChatChunk{Content: GenerationErrorPrefix + err.Error(), IsFinal: true})
}

func (c *chatStream) finish(chunk domain.ChatChunk) domain.ChatChunk {
	c.finished = true
	c.answer.WriteString(chunk.Content)

	msg := &domain.Message{
		ID:             domain.GenerateID(),
		ConversationID: c.conversationID,
		Role:           domain.RoleAssistant,
		Content:        c.answer.String(),
		Citations:      chunk.Citations,
		CreatedAt:      time.Now(),
	}
	if err := c.service.messages.AppendMessage(c.ctx, msg); err != nil {
		c.service.logger.Error("failed to save assistant message", "conversation_id", c.conversationID, "error", err)
	}

	if c.upstream != nil {
		_ = c.upstream.Close()
	}
	return chunk
}

// Close stops generation. An unfinished answer is discarded.
func (c *chatStream) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.upstream != nil && !c.finished {
		return c.upstream.Close()
	}
	return nil
}
