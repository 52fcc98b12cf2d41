package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

func vector(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func newOpenAITestServer(t *testing.T, handler func(req embeddingRequest) (int, any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		status, body := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
}

type openAIItem struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

func TestNewOpenAIEmbedding_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedding(domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI})
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNewOpenAIEmbedding_Defaults(t *testing.T) {
	svc, err := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if svc.Model() != "text-embedding-3-small" {
		t.Errorf("expected default model text-embedding-3-small, got %s", svc.Model())
	}
	if svc.baseURL != "https://api.openai.com/v1" {
		t.Errorf("expected default base URL, got %s", svc.baseURL)
	}
	if svc.Dimensions() != domain.EmbeddingDimensions {
		t.Errorf("expected %d dimensions, got %d", domain.EmbeddingDimensions, svc.Dimensions())
	}
	if err := svc.Close(); err != nil {
		t.Errorf("expected no error from Close, got %v", err)
	}
}

func TestOpenAIEmbedding_Embed_EmptyInput(t *testing.T) {
	svc, err := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.Embed(context.Background(), []string{})
	if err != nil {
		t.Errorf("unexpected error for empty input: %v", err)
	}
	if result != nil {
		t.Error("expected nil result for empty input")
	}
}

func TestOpenAIEmbedding_Embed_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/embeddings" {
			t.Errorf("expected /embeddings, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("expected Authorization header")
		}

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Dimensions != 4 {
			t.Errorf("expected dimensions 4 in request, got %d", req.Dimensions)
		}

		// Out of order on purpose
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []openAIItem{
				{Index: 1, Embedding: vector(4, 0.2)},
				{Index: 0, Embedding: vector(4, 0.1)},
			},
		})
	}))
	defer server.Close()

	svc, err := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test", BaseURL: server.URL, Dimensions: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.Embed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(result))
	}
	if result[0][0] != 0.1 || result[1][0] != 0.2 {
		t.Error("embeddings should be ordered by index")
	}
}

func TestOpenAIEmbedding_Embed_WrongDimensions(t *testing.T) {
	server := newOpenAITestServer(t, func(embeddingRequest) (int, any) {
		return http.StatusOK, map[string]any{"data": []openAIItem{{Index: 0, Embedding: vector(3, 0.1)}}}
	})
	defer server.Close()

	svc, _ := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test", BaseURL: server.URL, Dimensions: 4})

	_, err := svc.Embed(context.Background(), []string{"x"})
	var embErr *domain.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Errorf("expected EmbeddingError, got %v", err)
	}
}

func TestOpenAIEmbedding_EmbedQuery_EmptyResult(t *testing.T) {
	server := newOpenAITestServer(t, func(embeddingRequest) (int, any) {
		return http.StatusOK, map[string]any{"data": []openAIItem{}}
	})
	defer server.Close()

	svc, _ := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test", BaseURL: server.URL, Dimensions: 4})

	_, err := svc.EmbedQuery(context.Background(), "test query")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestOpenAIEmbedding_Embed_APIError(t *testing.T) {
	server := newOpenAITestServer(t, func(embeddingRequest) (int, any) {
		return http.StatusUnauthorized, map[string]any{
			"error": map[string]string{
				"message": "Invalid API key",
				"type":    "invalid_request_error",
				"code":    "invalid_api_key",
			},
		}
	})
	defer server.Close()

	svc, _ := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-invalid", BaseURL: server.URL})

	_, err := svc.Embed(context.Background(), []string{"test"})
	if err == nil {
		t.Fatal("expected error for API error response")
	}
	if domain.IsTransient(err) {
		t.Error("API errors should not be transient")
	}
}

func TestOpenAIEmbedding_Embed_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	svc, _ := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test", BaseURL: server.URL})

	if _, err := svc.Embed(context.Background(), []string{"test"}); err == nil {
		t.Error("expected error for invalid JSON response")
	}
}

func TestOpenAIEmbedding_Embed_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	svc, _ := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test", BaseURL: server.URL})

	if _, err := svc.Embed(context.Background(), []string{"test"}); err == nil {
		t.Error("expected error for server error response")
	}
}

func TestOpenAIEmbedding_Embed_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	svc, _ := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test", BaseURL: url})

	_, err := svc.Embed(context.Background(), []string{"test"})
	if err == nil {
		t.Fatal("expected error for network error")
	}
	if !domain.IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestOpenAIEmbedding_HealthCheck(t *testing.T) {
	server := newOpenAITestServer(t, func(embeddingRequest) (int, any) {
		return http.StatusOK, map[string]any{"data": []openAIItem{{Index: 0, Embedding: vector(4, 0.5)}}}
	})
	defer server.Close()

	svc, _ := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test", BaseURL: server.URL, Dimensions: 4})

	if err := svc.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected no error from health check, got %v", err)
	}
}
