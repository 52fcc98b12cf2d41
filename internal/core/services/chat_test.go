package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
)

type chatFixture struct {
	*retrievalFixture
	messages *mocks.MockMessageStore
	llm      *mocks.MockLLMService
	chat     driving.ChatService
}

func newChatFixture(t *testing.T, deltas ...string) *chatFixture {
	t.Helper()
	f := &chatFixture{
		retrievalFixture: newRetrievalFixture(t),
		messages:         mocks.NewMockMessageStore(),
		llm:              mocks.NewMockLLMService(deltas...),
	}
	f.chat = NewChatService(ChatConfig{
		Messages:  f.messages,
		Retrieval: f.retrieval,
		Embedder:  f.embedder,
		LLM:       f.llm,
		Options:   domain.GenerationOptions{Temperature: domain.DefaultTemperature},
	})
	return f
}

func (f *chatFixture) conversation(t *testing.T, owner string) *domain.Conversation {
	t.Helper()
	conv, err := f.chat.CreateConversation(context.Background(), owner, "")
	require.NoError(t, err)
	return conv
}

func drainChat(t *testing.T, stream driving.ChatStream) []domain.ChatChunk {
	t.Helper()
	var chunks []domain.ChatChunk
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk)
		require.Less(t, len(chunks), 100, "stream never finished")
	}
}

func TestChat_CreateConversation(t *testing.T) {
	f := newChatFixture(t)

	conv := f.conversation(t, "u1")
	assert.Equal(t, DefaultConversationTitle, conv.Title)
	assert.Equal(t, "u1", conv.OwnerID)

	_, err := f.chat.CreateConversation(context.Background(), "", "x")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	list, err := f.chat.ListConversations(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestChat_Stream(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, "Le stock du Product B ", "est de -50.")
	_, err := f.retrieval.Index(ctx, []domain.Chunk{csvChunk(3, "Product: Product B | Stock: -50")}, "u1", "f1")
	require.NoError(t, err)
	conv := f.conversation(t, "u1")

	stream, err := f.chat.Stream(ctx, "u1", conv.ID, "Quel est le stock du Product B ?")
	require.NoError(t, err)
	chunks := drainChat(t, stream)
	require.NoError(t, stream.Close())

	require.Len(t, chunks, 3)
	assert.Equal(t, "Le stock du Product B ", chunks[0].Content)
	assert.False(t, chunks[0].IsFinal)
	assert.Equal(t, "est de -50.", chunks[1].Content)
	assert.True(t, chunks[2].IsFinal)
	require.Len(t, chunks[2].Citations, 1)
	assert.Equal(t, domain.Citation{
		SourceType: domain.SourceTypeCSV,
		Filename:   "stock.csv",
		RowNumber:  3,
		Excerpt:    "Product: Product B | Stock: -50",
	}, chunks[2].Citations[0])

	msgs, err := f.chat.Messages(ctx, "u1", conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "Quel est le stock du Product B ?", msgs[0].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Le stock du Product B est de -50.", msgs[1].Content)
	assert.Len(t, msgs[1].Citations, 1)

	requests := f.llm.Requests()
	require.Len(t, requests, 1)
	prompt := requests[0]
	require.Len(t, prompt, 2)
	assert.Equal(t, domain.RoleSystem, prompt[0].Role)
	assert.Contains(t, prompt[0].Content, "RÈGLES IMPORTANTES")
	assert.Contains(t, prompt[0].Content, "[Source 1: stock.csv, ligne 3]")
	assert.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "Quel est le stock du Product B ?"}, prompt[1])
}

func TestChat_Stream_History(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, "Réponse.")
	conv := f.conversation(t, "u1")

	for _, q := range []string{"Première question", "Deuxième question"} {
		stream, err := f.chat.Stream(ctx, "u1", conv.ID, q)
		require.NoError(t, err)
		drainChat(t, stream)
	}

	requests := f.llm.Requests()
	require.Len(t, requests, 2)
	second := requests[1]
	require.Len(t, second, 4)
	assert.Equal(t, "Première question", second[1].Content)
	assert.Equal(t, domain.RoleAssistant, second[2].Role)
	assert.Equal(t, "Réponse.", second[2].Content)
	assert.Equal(t, "Deuxième question", second[3].Content)
}

func TestChat_Stream_NothingFoundStillGrounded(t *testing.T) {
	f := newChatFixture(t, "ok")
	conv := f.conversation(t, "u1")

	stream, err := f.chat.Stream(context.Background(), "u1", conv.ID, "stock")
	require.NoError(t, err)
	chunks := drainChat(t, stream)

	assert.Nil(t, chunks[len(chunks)-1].Citations)
	system := f.llm.Requests()[0][0].Content
	assert.Contains(t, system, NoDocumentsFound)
}

func TestChat_Stream_EmbeddingFailureSkipsRetrieval(t *testing.T) {
	f := newChatFixture(t, "ok")
	conv := f.conversation(t, "u1")
	f.svc.SetFailNext(true)

	stream, err := f.chat.Stream(context.Background(), "u1", conv.ID, "stock")
	require.NoError(t, err)
	chunks := drainChat(t, stream)

	assert.True(t, chunks[len(chunks)-1].IsFinal)
	assert.Empty(t, f.chunks.Queries(), "retrieval is skipped")
	system := f.llm.Requests()[0][0].Content
	assert.NotContains(t, system, "RÈGLES IMPORTANTES")
	assert.Contains(t, system, "Réponds toujours en français")
}

func TestChat_Stream_GenerationErrorMidStream(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, "Réponse partielle")
	f.llm.StreamErr = errors.New("connection reset by peer")
	conv := f.conversation(t, "u1")

	stream, err := f.chat.Stream(ctx, "u1", conv.ID, "stock")
	require.NoError(t, err)
	chunks := drainChat(t, stream)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Réponse partielle", chunks[0].Content)
	final := chunks[1]
	assert.True(t, final.IsFinal)
	assert.Equal(t, GenerationErrorPrefix+"connection reset by peer", final.Content)
	assert.Nil(t, final.Citations)

	msgs, err := f.chat.Messages(ctx, "u1", conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Réponse partielle"+GenerationErrorPrefix+"connection reset by peer", msgs[1].Content)
	assert.True(t, f.llm.Streams()[0].Closed(), "upstream released")
}

func TestChat_Stream_GenerationFailsToStart(t *testing.T) {
	f := newChatFixture(t)
	f.llm.ChatErr = &domain.TransientIOError{Op: "chat", Err: errors.New("dial tcp: connection refused")}
	conv := f.conversation(t, "u1")

	stream, err := f.chat.Stream(context.Background(), "u1", conv.ID, "stock")
	require.NoError(t, err)
	chunks := drainChat(t, stream)

	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].IsFinal)
	assert.True(t, strings.HasPrefix(chunks[0].Content, GenerationErrorPrefix))
	assert.Contains(t, chunks[0].Content, "connection refused")
}

func TestChat_Stream_NoBackend(t *testing.T) {
	messages := mocks.NewMockMessageStore()
	chat := NewChatService(ChatConfig{Messages: messages})
	conv, err := chat.CreateConversation(context.Background(), "u1", "Test")
	require.NoError(t, err)

	stream, err := chat.Stream(context.Background(), "u1", conv.ID, "stock")
	require.NoError(t, err)
	chunks := drainChat(t, stream)

	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, domain.ErrServiceUnavailable.Error())
}

func TestChat_Stream_Cancellation(t *testing.T) {
	f := newChatFixture(t, "Début")
	f.llm.Block = make(chan struct{})
	conv := f.conversation(t, "u1")

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := f.chat.Stream(ctx, "u1", conv.ID, "stock")
	require.NoError(t, err)

	first, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "Début", first.Content)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = stream.Next()
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, stream.Close())
	assert.True(t, f.llm.Streams()[0].Closed())

	msgs, err := f.chat.Messages(context.Background(), "u1", conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "no assistant message after cancellation")
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
}

func TestChat_Stream_CloseBeforeFinish(t *testing.T) {
	f := newChatFixture(t, "a", "b", "c")
	conv := f.conversation(t, "u1")

	stream, err := f.chat.Stream(context.Background(), "u1", conv.ID, "stock")
	require.NoError(t, err)
	_, err = stream.Next()
	require.NoError(t, err)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	_, err = stream.Next()
	assert.ErrorIs(t, err, context.Canceled)

	msgs, err := f.chat.Messages(context.Background(), "u1", conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestChat_Stream_Validation(t *testing.T) {
	f := newChatFixture(t)
	conv := f.conversation(t, "u1")

	_, err := f.chat.Stream(context.Background(), "u1", conv.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.chat.Stream(context.Background(), "u2", conv.ID, "stock")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.chat.Messages(context.Background(), "u2", conv.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBuildPrompt(t *testing.T) {
	history := []*domain.Message{
		{Role: domain.RoleUser, Content: "q1"},
		{Role: domain.RoleAssistant, Content: "a1"},
		{Role: domain.RoleUser, Content: "q2"},
	}

	grounded := BuildPrompt(history, "CONTEXTE")
	require.Len(t, grounded, 4)
	assert.True(t, strings.HasPrefix(grounded[0].Content, "Tu es un assistant IA spécialisé en Supply Chain."))
	assert.True(t, strings.HasSuffix(grounded[0].Content, "CONTEXTE\n"))
	assert.Equal(t, "q2", grounded[3].Content)

	ungrounded := BuildPrompt(history[:1], "")
	require.Len(t, ungrounded, 2)
	assert.NotContains(t, ungrounded[0].Content, "RÈGLES IMPORTANTES")
}
