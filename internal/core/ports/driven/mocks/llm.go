package mocks

import (
	"context"
	"io"
	"sync"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
)

// MockLLMService replays scripted deltas. When StreamErr is set, the stream
// fails with it after the scripted deltas instead of finishing.
type MockLLMService struct {
	mu sync.Mutex

	Deltas    []string
	ChatErr   error
	StreamErr error

	// Block, when set, makes Next wait on it (or on cancellation) after the
	// scripted deltas run out.
	Block chan struct{}

	requests [][]domain.ChatMessage
	streams  []*MockChatStream
}

// NewMockLLMService creates a mock answering with the given deltas
func NewMockLLMService(deltas ...string) *MockLLMService {
	return &MockLLMService{Deltas: deltas}
}

func (m *MockLLMService) Chat(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerationOptions) (driven.ChatStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, append([]domain.ChatMessage(nil), messages...))
	if m.ChatErr != nil {
		return nil, m.ChatErr
	}
	s := &MockChatStream{ctx: ctx, deltas: append([]string(nil), m.Deltas...), err: m.StreamErr, block: m.Block}
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *MockLLMService) Model() string {
	return "mock-llm"
}

func (m *MockLLMService) Ping(ctx context.Context) error {
	return nil
}

func (m *MockLLMService) Close() error {
	return nil
}

// Requests returns the message lists sent to Chat.
func (m *MockLLMService) Requests() [][]domain.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]domain.ChatMessage(nil), m.requests...)
}

// Streams returns every stream handed out.
func (m *MockLLMService) Streams() []*MockChatStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockChatStream(nil), m.streams...)
}

// MockChatStream is the stream returned by MockLLMService.
type MockChatStream struct {
	mu     sync.Mutex
	ctx    context.Context
	deltas []string
	err    error
	block  chan struct{}
	done   bool
	closed bool
}

func (s *MockChatStream) Next() (domain.GenerationDelta, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.GenerationDelta{}, context.Canceled
	}
	if s.done {
		s.mu.Unlock()
		return domain.GenerationDelta{}, io.EOF
	}
	if len(s.deltas) > 0 {
		d := s.deltas[0]
		s.deltas = s.deltas[1:]
		s.mu.Unlock()
		return domain.GenerationDelta{Content: d}, nil
	}
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-s.ctx.Done():
			return domain.GenerationDelta{}, s.ctx.Err()
		case <-block:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.GenerationDelta{}, s.err
	}
	s.done = true
	return domain.GenerationDelta{Done: true}, nil
}

func (s *MockChatStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *MockChatStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
