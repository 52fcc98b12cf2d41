package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// MockFileStore is an in-memory FileStore
type MockFileStore struct {
	mu    sync.RWMutex
	files map[string]*domain.File

	UpdateStatusErr error
}

// NewMockFileStore creates an empty file store
func NewMockFileStore() *MockFileStore {
	return &MockFileStore{files: make(map[string]*domain.File)}
}

func (m *MockFileStore) Save(ctx context.Context, file *domain.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *file
	m.files[file.ID] = &cp
	return nil
}

func (m *MockFileStore) Get(ctx context.Context, id string) (*domain.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *MockFileStore) ListByOwner(ctx context.Context, ownerID string) ([]*domain.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.File
	for _, f := range m.files {
		if f.OwnerID == ownerID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockFileStore) UpdateStatus(ctx context.Context, id string, status domain.FileStatus, errorMessage string) error {
	if m.UpdateStatusErr != nil {
		return m.UpdateStatusErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return domain.ErrNotFound
	}
	f.Status = status
	f.ErrorMessage = errorMessage
	return nil
}

func (m *MockFileStore) SaveTemporalMetadata(ctx context.Context, id string, meta *domain.TemporalMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return domain.ErrNotFound
	}
	f.TemporalMetadata = meta
	return nil
}

func (m *MockFileStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.files, id)
	return nil
}

func (m *MockFileStore) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, f := range m.files {
		if f.Status != domain.FileStatusExpired && f.ExpiresAt.Before(now) {
			f.Status = domain.FileStatusExpired
			n++
		}
	}
	return n, nil
}

// MockAlertStore is an in-memory AlertStore
type MockAlertStore struct {
	mu     sync.RWMutex
	alerts []*domain.Alert

	SaveErr error
}

// NewMockAlertStore creates an empty alert store
func NewMockAlertStore() *MockAlertStore {
	return &MockAlertStore{}
}

func (m *MockAlertStore) SaveBatch(ctx context.Context, alerts []*domain.Alert) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alerts...)
	return nil
}

func (m *MockAlertStore) ListByFile(ctx context.Context, fileID string) ([]*domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Alert
	for _, a := range m.alerts {
		if a.FileID == fileID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockAlertStore) ListByOwner(ctx context.Context, ownerID string, unreadOnly bool) ([]*domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Alert
	for _, a := range m.alerts {
		if a.OwnerID == ownerID && (!unreadOnly || !a.IsRead) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockAlertStore) MarkRead(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id && a.OwnerID == ownerID {
			a.IsRead = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockAlertStore) DeleteByFile(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if a.FileID != fileID {
			kept = append(kept, a)
		}
	}
	m.alerts = kept
	return nil
}

// All returns every stored alert in insertion order.
func (m *MockAlertStore) All() []*domain.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.Alert(nil), m.alerts...)
}

// MockMessageStore is an in-memory MessageStore
type MockMessageStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
	messages      map[string][]*domain.Message
}

// NewMockMessageStore creates an empty message store
func NewMockMessageStore() *MockMessageStore {
	return &MockMessageStore{
		conversations: make(map[string]*domain.Conversation),
		messages:      make(map[string][]*domain.Message),
	}
}

func (m *MockMessageStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *conv
	m.conversations[conv.ID] = &cp
	return nil
}

func (m *MockMessageStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockMessageStore) ListConversations(ctx context.Context, ownerID string) ([]*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Conversation
	for _, c := range m.conversations {
		if c.OwnerID == ownerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MockMessageStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[msg.ConversationID]
	if !ok {
		return domain.ErrNotFound
	}
	c.UpdatedAt = msg.CreatedAt
	cp := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &cp)
	return nil
}

func (m *MockMessageStore) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.Message(nil), m.messages[conversationID]...), nil
}

// MockBlobStore is an in-memory BlobStore
type MockBlobStore struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	expires map[string]time.Time

	GetErr error
}

// NewMockBlobStore creates an empty blob store
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{
		blobs:   make(map[string][]byte),
		expires: make(map[string]time.Time),
	}
}

func (m *MockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	m.expires[key] = expiresAt
	return nil
}

func (m *MockBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (m *MockBlobStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	delete(m.expires, key)
	return nil
}

func (m *MockBlobStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, exp := range m.expires {
		if exp.Before(now) {
			delete(m.blobs, k)
			delete(m.expires, k)
			n++
		}
	}
	return n, nil
}

// Has reports whether key is stored.
func (m *MockBlobStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[key]
	return ok
}
