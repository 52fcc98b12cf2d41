package mocks

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

// MockEmbeddingService is a mock implementation of EmbeddingService for testing.
// Vectors are deterministic per text so identical inputs embed identically.
type MockEmbeddingService struct {
	mu         sync.Mutex
	dimensions int
	model      string
	failNext   bool
	failTexts  map[string]bool
	calls      int
	embedded   []string
}

// NewMockEmbeddingService creates a new MockEmbeddingService
func NewMockEmbeddingService() *MockEmbeddingService {
	return &MockEmbeddingService{
		dimensions: 768,
		model:      "mock-embedding-model",
		failTexts:  make(map[string]bool),
	}
}

// ErrMockEmbedding is returned for texts configured to fail.
var ErrMockEmbedding = errors.New("mock embedding failure")

func (m *MockEmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.failNext {
		m.failNext = false
		return nil, context.DeadlineExceeded
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		if m.failTexts[text] {
			return nil, ErrMockEmbedding
		}
		result[i] = m.generateEmbedding(text)
		m.embedded = append(m.embedded, text)
	}
	return result, nil
}

func (m *MockEmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := m.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *MockEmbeddingService) Dimensions() int {
	return m.dimensions
}

func (m *MockEmbeddingService) Model() string {
	return m.model
}

func (m *MockEmbeddingService) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *MockEmbeddingService) Close() error {
	return nil
}

// generateEmbedding generates a deterministic embedding based on text hash
func (m *MockEmbeddingService) generateEmbedding(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		seed = seed*1103515245 + 12345
		embedding[i] = float32(seed%1000) / 1000.0
	}
	return embedding
}

// Helper methods for testing

func (m *MockEmbeddingService) SetFailNext(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = fail
}

// FailOn makes every call that includes text fail.
func (m *MockEmbeddingService) FailOn(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTexts[text] = true
}

func (m *MockEmbeddingService) SetDimensions(dim int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimensions = dim
}

// Calls returns how many times Embed reached the mock.
func (m *MockEmbeddingService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Embedded returns every text embedded so far, in call order.
func (m *MockEmbeddingService) Embedded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.embedded...)
}

// MockEmbeddingCache is an in-memory EmbeddingCache.
type MockEmbeddingCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	ttls    map[string]time.Duration

	GetErr error
}

// NewMockEmbeddingCache creates an empty cache
func NewMockEmbeddingCache() *MockEmbeddingCache {
	return &MockEmbeddingCache{
		entries: make(map[string][]float32),
		ttls:    make(map[string]time.Duration),
	}
}

func (m *MockEmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, false, m.GetErr
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *MockEmbeddingCache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = vector
	m.ttls[key] = ttl
	return nil
}

// Len returns the number of cached vectors.
func (m *MockEmbeddingCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// TTL returns the expiry a key was stored with.
func (m *MockEmbeddingCache) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}
