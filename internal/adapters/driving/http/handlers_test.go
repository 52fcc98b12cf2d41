package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
)

// Mock services for testing

type mockFileService struct {
	uploadFn      func(ctx context.Context, req domain.UploadRequest) (*domain.File, error)
	getFn         func(ctx context.Context, ownerID, fileID string) (*domain.File, error)
	listFn        func(ctx context.Context, ownerID string) ([]*domain.File, error)
	deleteFn      func(ctx context.Context, ownerID, fileID string) error
	alertsFn      func(ctx context.Context, ownerID, fileID string) ([]*domain.Alert, error)
	ownerAlertsFn func(ctx context.Context, ownerID string, unreadOnly bool) ([]*domain.Alert, error)
	markReadFn    func(ctx context.Context, ownerID, alertID string) error
	temporalFn    func(ctx context.Context, ownerID, fileID string) (*domain.TemporalMetadata, error)
	configureFn   func(ctx context.Context, ownerID, fileID string, cfg domain.TemporalConfig) (*domain.File, error)
}

func (m *mockFileService) Upload(ctx context.Context, req domain.UploadRequest) (*domain.File, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockFileService) Get(ctx context.Context, ownerID, fileID string) (*domain.File, error) {
	if m.getFn != nil {
		return m.getFn(ctx, ownerID, fileID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockFileService) List(ctx context.Context, ownerID string) ([]*domain.File, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockFileService) Delete(ctx context.Context, ownerID, fileID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ownerID, fileID)
	}
	return nil
}

func (m *mockFileService) Alerts(ctx context.Context, ownerID, fileID string) ([]*domain.Alert, error) {
	if m.alertsFn != nil {
		return m.alertsFn(ctx, ownerID, fileID)
	}
	return nil, nil
}

func (m *mockFileService) OwnerAlerts(ctx context.Context, ownerID string, unreadOnly bool) ([]*domain.Alert, error) {
	if m.ownerAlertsFn != nil {
		return m.ownerAlertsFn(ctx, ownerID, unreadOnly)
	}
	return nil, nil
}

func (m *mockFileService) MarkAlertRead(ctx context.Context, ownerID, alertID string) error {
	if m.markReadFn != nil {
		return m.markReadFn(ctx, ownerID, alertID)
	}
	return nil
}

func (m *mockFileService) Temporal(ctx context.Context, ownerID, fileID string) (*domain.TemporalMetadata, error) {
	if m.temporalFn != nil {
		return m.temporalFn(ctx, ownerID, fileID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockFileService) ConfigureTemporal(ctx context.Context, ownerID, fileID string, cfg domain.TemporalConfig) (*domain.File, error) {
	if m.configureFn != nil {
		return m.configureFn(ctx, ownerID, fileID, cfg)
	}
	return nil, errors.New("not implemented")
}

type mockChatService struct {
	createFn   func(ctx context.Context, ownerID, title string) (*domain.Conversation, error)
	listFn     func(ctx context.Context, ownerID string) ([]*domain.Conversation, error)
	messagesFn func(ctx context.Context, ownerID, conversationID string) ([]*domain.Message, error)
	streamFn   func(ctx context.Context, ownerID, conversationID, query string) (driving.ChatStream, error)
}

func (m *mockChatService) CreateConversation(ctx context.Context, ownerID, title string) (*domain.Conversation, error) {
	if m.createFn != nil {
		return m.createFn(ctx, ownerID, title)
	}
	return nil, errors.New("not implemented")
}

func (m *mockChatService) ListConversations(ctx context.Context, ownerID string) ([]*domain.Conversation, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockChatService) Messages(ctx context.Context, ownerID, conversationID string) ([]*domain.Message, error) {
	if m.messagesFn != nil {
		return m.messagesFn(ctx, ownerID, conversationID)
	}
	return nil, nil
}

func (m *mockChatService) Stream(ctx context.Context, ownerID, conversationID, query string) (driving.ChatStream, error) {
	if m.streamFn != nil {
		return m.streamFn(ctx, ownerID, conversationID, query)
	}
	return nil, errors.New("not implemented")
}

type fakeChatStream struct {
	chunks []domain.ChatChunk
	err    error
	pos    int
	closed bool
}

func (s *fakeChatStream) Next() (domain.ChatChunk, error) {
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.err != nil {
		return domain.ChatChunk{}, s.err
	}
	return domain.ChatChunk{}, io.EOF
}

func (s *fakeChatStream) Close() error {
	s.closed = true
	return nil
}

type mockRetrievalService struct {
	searchFn func(ctx context.Context, req domain.RetrievalRequest) ([]domain.SearchResult, error)
}

func (m *mockRetrievalService) Index(ctx context.Context, chunks []domain.Chunk, ownerID, fileID string) (int, error) {
	return 0, nil
}

func (m *mockRetrievalService) Search(ctx context.Context, req domain.RetrievalRequest) ([]domain.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, req)
	}
	return nil, nil
}

func (m *mockRetrievalService) Retrieve(ctx context.Context, query, ownerID string, embedding []float32) (*domain.RetrievedContext, error) {
	return &domain.RetrievedContext{}, nil
}

func (m *mockRetrievalService) BuildContext(results []domain.SearchResult) string {
	return fmt.Sprintf("%d blocks", len(results))
}

func (m *mockRetrievalService) BuildKnowledgeContext(results []domain.KnowledgeResult) string {
	return ""
}

func (m *mockRetrievalService) DeleteFile(ctx context.Context, ownerID, fileID string) error {
	return nil
}

type mockKnowledgeService struct {
	addFn        func(ctx context.Context, item *domain.KnowledgeItem) error
	searchFn     func(ctx context.Context, query domain.KnowledgeQuery) ([]domain.KnowledgeResult, error)
	deleteFn     func(ctx context.Context, id string) error
	categoriesFn func(ctx context.Context) ([]domain.CategoryCount, error)
}

func (m *mockKnowledgeService) Add(ctx context.Context, item *domain.KnowledgeItem) error {
	if m.addFn != nil {
		return m.addFn(ctx, item)
	}
	return nil
}

func (m *mockKnowledgeService) AddBatch(ctx context.Context, items []domain.KnowledgeItem) (int, error) {
	return len(items), nil
}

func (m *mockKnowledgeService) Search(ctx context.Context, query domain.KnowledgeQuery) ([]domain.KnowledgeResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return nil, nil
}

func (m *mockKnowledgeService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockKnowledgeService) DeleteByCategory(ctx context.Context, category string) error {
	return nil
}

func (m *mockKnowledgeService) Categories(ctx context.Context) ([]domain.CategoryCount, error) {
	if m.categoriesFn != nil {
		return m.categoriesFn(ctx)
	}
	return nil, nil
}

type mockVespaAdmin struct {
	status *domain.VespaStatus
	err    error
}

func (m *mockVespaAdmin) Deploy(ctx context.Context, devMode bool) (*domain.VespaDeployResult, error) {
	return nil, errors.New("not implemented")
}

func (m *mockVespaAdmin) Status(ctx context.Context) (*domain.VespaStatus, error) {
	return m.status, m.err
}

func (m *mockVespaAdmin) HealthCheck(ctx context.Context) error {
	return m.err
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

// Test helpers

const testToken = "test-token"
const testOwner = "owner-1"

func newTestServer(services Services, infra Infrastructure) *Server {
	if services.Files == nil {
		services.Files = &mockFileService{}
	}
	if services.Chat == nil {
		services.Chat = &mockChatService{}
	}
	if services.Retrieval == nil {
		services.Retrieval = &mockRetrievalService{}
	}
	if services.Knowledge == nil {
		services.Knowledge = &mockKnowledgeService{}
	}
	cfg := DefaultConfig()
	cfg.Version = "1.2.3"
	return NewServer(cfg, services, staticVerifier(testToken, testOwner), infra)
}

func doRequest(s *Server, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func doJSON(s *Server, method, path string, v any) *httptest.ResponseRecorder {
	var body io.Reader
	if v != nil {
		data, _ := json.Marshal(v)
		body = bytes.NewReader(data)
	}
	return doRequest(s, method, path, body, "application/json")
}

// Health endpoints

func TestHandleHealthAndVersion(t *testing.T) {
	s := newTestServer(Services{}, Infrastructure{})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/version", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"version":"1.2.3"}`, rr.Body.String())
}

func TestHandleReady(t *testing.T) {
	readyStatus := &domain.VespaStatus{Healthy: true, Schemas: domain.IndexSchemas}

	tests := []struct {
		name     string
		services Services
		infra    Infrastructure
		wantCode int
	}{
		{
			name:     "all dependencies up",
			services: Services{VespaAdmin: &mockVespaAdmin{status: readyStatus}},
			infra:    Infrastructure{DB: &mockPinger{}, Redis: &mockPinger{}, Queue: &mockPinger{}},
			wantCode: http.StatusOK,
		},
		{
			name:     "queue down",
			services: Services{VespaAdmin: &mockVespaAdmin{status: readyStatus}},
			infra: Infrastructure{
				DB:    &mockPinger{},
				Queue: PingFunc(func(context.Context) error { return errors.New("queue unreachable") }),
			},
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name:     "database down",
			services: Services{VespaAdmin: &mockVespaAdmin{status: readyStatus}},
			infra:    Infrastructure{DB: &mockPinger{err: errors.New("connection refused")}},
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name:     "schemas missing",
			services: Services{VespaAdmin: &mockVespaAdmin{status: &domain.VespaStatus{Healthy: true}}},
			infra:    Infrastructure{DB: &mockPinger{}},
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.services, tt.infra)
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/ready", nil))
			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(Services{}, Infrastructure{})

	for _, route := range []string{"/api/v1/files", "/api/v1/conversations", "/api/v1/knowledge/categories"} {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", route, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, route)
	}
}

// File endpoints

func multipartUpload(t *testing.T, filename, contentType, content string, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandleUploadFile(t *testing.T) {
	var got domain.UploadRequest
	files := &mockFileService{uploadFn: func(ctx context.Context, req domain.UploadRequest) (*domain.File, error) {
		got = req
		return &domain.File{ID: "file-1", OwnerID: req.OwnerID, Filename: req.Filename, Status: domain.FileStatusPending}, nil
	}}
	s := newTestServer(Services{Files: files}, Infrastructure{})

	body, ct := multipartUpload(t, "stock.csv", "text/csv", "Product,Stock\nA,-5\n", map[string]string{"conversation_id": "conv-9"})
	rr := doRequest(s, "POST", "/api/v1/files", body, ct)

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, testOwner, got.OwnerID)
	assert.Equal(t, "stock.csv", got.Filename)
	assert.Equal(t, "text/csv", got.ContentType)
	assert.Equal(t, "conv-9", got.ConversationID)
	assert.Equal(t, "Product,Stock\nA,-5\n", string(got.Data))

	var file domain.File
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &file))
	assert.Equal(t, "file-1", file.ID)
}

func TestHandleUploadFileErrors(t *testing.T) {
	t.Run("unsupported type", func(t *testing.T) {
		files := &mockFileService{uploadFn: func(ctx context.Context, req domain.UploadRequest) (*domain.File, error) {
			return nil, fmt.Errorf("%w: image/png", domain.ErrUnsupportedFileType)
		}}
		s := newTestServer(Services{Files: files}, Infrastructure{})
		body, ct := multipartUpload(t, "logo.png", "image/png", "png", nil)

		rr := doRequest(s, "POST", "/api/v1/files", body, ct)
		assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	})

	t.Run("missing file field", func(t *testing.T) {
		s := newTestServer(Services{}, Infrastructure{})
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("conversation_id", "c"))
		require.NoError(t, mw.Close())

		rr := doRequest(s, "POST", "/api/v1/files", &buf, mw.FormDataContentType())
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		s := newTestServer(Services{}, Infrastructure{})
		rr := doRequest(s, "POST", "/api/v1/files", strings.NewReader("{}"), "application/json")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestHandleListFilesEmpty(t *testing.T) {
	s := newTestServer(Services{}, Infrastructure{})
	rr := doRequest(s, "GET", "/api/v1/files", nil, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestHandleGetFile(t *testing.T) {
	files := &mockFileService{getFn: func(ctx context.Context, ownerID, fileID string) (*domain.File, error) {
		if ownerID != testOwner || fileID != "file-1" {
			return nil, domain.ErrNotFound
		}
		return &domain.File{ID: "file-1", OwnerID: ownerID}, nil
	}}
	s := newTestServer(Services{Files: files}, Infrastructure{})

	assert.Equal(t, http.StatusOK, doRequest(s, "GET", "/api/v1/files/file-1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(s, "GET", "/api/v1/files/other", nil, "").Code)
}

func TestHandleDeleteFile(t *testing.T) {
	var deleted string
	files := &mockFileService{deleteFn: func(ctx context.Context, ownerID, fileID string) error {
		deleted = fileID
		return nil
	}}
	s := newTestServer(Services{Files: files}, Infrastructure{})

	rr := doRequest(s, "DELETE", "/api/v1/files/file-7", nil, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "file-7", deleted)
}

func TestHandleConfigureTemporal(t *testing.T) {
	var got domain.TemporalConfig
	files := &mockFileService{configureFn: func(ctx context.Context, ownerID, fileID string, cfg domain.TemporalConfig) (*domain.File, error) {
		got = cfg
		return &domain.File{ID: fileID, Status: domain.FileStatusPending}, nil
	}}
	s := newTestServer(Services{Files: files}, Infrastructure{})

	rr := doRequest(s, "PUT", "/api/v1/files/file-1/temporal",
		strings.NewReader(`{"date_columns":["Order Date","Delivery Date"]}`), "application/json")

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, []string{"Order Date", "Delivery Date"}, got.DateColumns)

	rr = doRequest(s, "PUT", "/api/v1/files/file-1/temporal", strings.NewReader(`{`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleOwnerAlerts(t *testing.T) {
	var unread bool
	files := &mockFileService{ownerAlertsFn: func(ctx context.Context, ownerID string, unreadOnly bool) ([]*domain.Alert, error) {
		unread = unreadOnly
		return []*domain.Alert{{ID: "a1", Type: domain.AlertTypeNegativeStock, Severity: domain.SeverityCritical}}, nil
	}}
	s := newTestServer(Services{Files: files}, Infrastructure{})

	rr := doRequest(s, "GET", "/api/v1/alerts?unread=true", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, unread)
	assert.Contains(t, rr.Body.String(), `"alert_type":"negative_stock"`)
}

func TestHandleMarkAlertReadNotFound(t *testing.T) {
	files := &mockFileService{markReadFn: func(ctx context.Context, ownerID, alertID string) error {
		return domain.ErrNotFound
	}}
	s := newTestServer(Services{Files: files}, Infrastructure{})

	rr := doRequest(s, "POST", "/api/v1/alerts/a9/read", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// Conversation endpoints

func TestHandleCreateConversation(t *testing.T) {
	chat := &mockChatService{createFn: func(ctx context.Context, ownerID, title string) (*domain.Conversation, error) {
		return &domain.Conversation{ID: "conv-1", OwnerID: ownerID, Title: title}, nil
	}}
	s := newTestServer(Services{Chat: chat}, Infrastructure{})

	rr := doJSON(s, "POST", "/api/v1/conversations", CreateConversationRequest{Title: "Stock"})
	require.Equal(t, http.StatusCreated, rr.Code)

	var conv domain.Conversation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &conv))
	assert.Equal(t, testOwner, conv.OwnerID)
	assert.Equal(t, "Stock", conv.Title)

	rr = doRequest(s, "POST", "/api/v1/conversations", nil, "")
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestHandleSendMessageStreamsSSE(t *testing.T) {
	stream := &fakeChatStream{chunks: []domain.ChatChunk{
		{Content: "Product B "},
		{Content: "is short.", IsFinal: true, Citations: []domain.Citation{{Filename: "stock.csv", Excerpt: "Product B,-50"}}},
	}}
	var gotQuery string
	chat := &mockChatService{streamFn: func(ctx context.Context, ownerID, conversationID, query string) (driving.ChatStream, error) {
		gotQuery = query
		return stream, nil
	}}
	s := newTestServer(Services{Chat: chat}, Infrastructure{})

	rr := doJSON(s, "POST", "/api/v1/conversations/conv-1/messages", SendMessageRequest{Content: "stock?"})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Equal(t, "stock?", gotQuery)
	assert.True(t, stream.closed)

	frames := strings.Split(strings.TrimSpace(rr.Body.String()), "\n\n")
	require.Len(t, frames, 2)
	for _, f := range frames {
		assert.True(t, strings.HasPrefix(f, "data: "), f)
	}

	var last domain.ChatChunk
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[1], "data: ")), &last))
	assert.True(t, last.IsFinal)
	require.Len(t, last.Citations, 1)
	assert.Equal(t, "stock.csv", last.Citations[0].Filename)
}

func TestHandleSendMessageErrors(t *testing.T) {
	chat := &mockChatService{streamFn: func(ctx context.Context, ownerID, conversationID, query string) (driving.ChatStream, error) {
		return nil, domain.ErrNotFound
	}}
	s := newTestServer(Services{Chat: chat}, Infrastructure{})

	rr := doJSON(s, "POST", "/api/v1/conversations/missing/messages", SendMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(s, "POST", "/api/v1/conversations/conv-1/messages", SendMessageRequest{Content: "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleSendMessageRateLimited(t *testing.T) {
	chat := &mockChatService{streamFn: func(ctx context.Context, ownerID, conversationID, query string) (driving.ChatStream, error) {
		return &fakeChatStream{chunks: []domain.ChatChunk{{IsFinal: true}}}, nil
	}}
	cfg := DefaultConfig()
	cfg.MessagesPerMinute = 1
	s := NewServer(cfg, Services{Chat: chat}, staticVerifier(testToken, testOwner), Infrastructure{})

	rr := doJSON(s, "POST", "/api/v1/conversations/conv-1/messages", SendMessageRequest{Content: "one"})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(s, "POST", "/api/v1/conversations/conv-1/messages", SendMessageRequest{Content: "two"})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

// Search endpoints

func TestHandleSearch(t *testing.T) {
	var got domain.RetrievalRequest
	retrieval := &mockRetrievalService{searchFn: func(ctx context.Context, req domain.RetrievalRequest) ([]domain.SearchResult, error) {
		got = req
		return []domain.SearchResult{{Content: "Product B,-50,100,20"}}, nil
	}}
	s := newTestServer(Services{Retrieval: retrieval}, Infrastructure{})

	rr := doJSON(s, "POST", "/api/v1/search", SearchRequest{Query: "product b", TopK: 3})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, testOwner, got.OwnerID)
	assert.Equal(t, 3, got.TopK)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "1 blocks", resp.Context)

	rr = doJSON(s, "POST", "/api/v1/search", SearchRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// Knowledge endpoints

func TestHandleKnowledgeSearch(t *testing.T) {
	var got domain.KnowledgeQuery
	knowledge := &mockKnowledgeService{searchFn: func(ctx context.Context, query domain.KnowledgeQuery) ([]domain.KnowledgeResult, error) {
		got = query
		return nil, nil
	}}
	s := newTestServer(Services{Knowledge: knowledge}, Infrastructure{})

	rr := doRequest(s, "GET", "/api/v1/knowledge/search?q=safety+stock&category=inventory&tags=abc,+xyz&top_k=7", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
	assert.Equal(t, "safety stock", got.Text)
	assert.Equal(t, "inventory", got.Category)
	assert.Equal(t, []string{"abc", "xyz"}, got.Tags)
	assert.Equal(t, 7, got.TopK)

	assert.Equal(t, http.StatusBadRequest, doRequest(s, "GET", "/api/v1/knowledge/search?q=x&top_k=-1", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(s, "GET", "/api/v1/knowledge/search", nil, "").Code)
}

func TestHandleAddKnowledge(t *testing.T) {
	knowledge := &mockKnowledgeService{addFn: func(ctx context.Context, item *domain.KnowledgeItem) error {
		if item.Title == "" {
			return fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
		}
		item.ID = "k-1"
		return nil
	}}
	s := newTestServer(Services{Knowledge: knowledge}, Infrastructure{})

	rr := doJSON(s, "POST", "/api/v1/knowledge", domain.KnowledgeItem{Title: "EOQ", Content: "Economic order quantity", Category: "inventory"})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"id":"k-1"`)

	rr = doJSON(s, "POST", "/api/v1/knowledge", domain.KnowledgeItem{Content: "no title"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleKnowledgeCategoriesAndDelete(t *testing.T) {
	knowledge := &mockKnowledgeService{
		categoriesFn: func(ctx context.Context) ([]domain.CategoryCount, error) {
			return []domain.CategoryCount{{Category: "inventory", Count: 4}}, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			if id == "missing" {
				return domain.ErrNotFound
			}
			return nil
		},
	}
	s := newTestServer(Services{Knowledge: knowledge}, Infrastructure{})

	rr := doRequest(s, "GET", "/api/v1/knowledge/categories", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"category":"inventory","count":4}]`, rr.Body.String())

	assert.Equal(t, http.StatusNoContent, doRequest(s, "DELETE", "/api/v1/knowledge/k-1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(s, "DELETE", "/api/v1/knowledge/missing", nil, "").Code)
}

func TestHandleVespaStatus(t *testing.T) {
	s := newTestServer(Services{}, Infrastructure{})
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(s, "GET", "/api/v1/admin/vespa/status", nil, "").Code)

	s = newTestServer(Services{VespaAdmin: &mockVespaAdmin{status: &domain.VespaStatus{Endpoint: "http://vespa:19071", Healthy: true}}}, Infrastructure{})
	rr := doRequest(s, "GET", "/api/v1/admin/vespa/status", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"healthy":true`)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", domain.ErrInvalidInput), http.StatusBadRequest},
		{domain.ErrUnsupportedFileType, http.StatusUnsupportedMediaType},
		{domain.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, mapError(tt.err))
		})
	}
}
