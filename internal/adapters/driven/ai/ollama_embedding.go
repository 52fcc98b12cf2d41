package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
)

// Ensure OllamaEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*OllamaEmbedding)(nil)

// OllamaEmbedding implements EmbeddingService using a local Ollama server.
type OllamaEmbedding struct {
	model      string
	baseURL    string
	dimensions int
	client     *http.Client
}

// NewOllamaEmbedding creates a new Ollama embedding service.
func NewOllamaEmbedding(settings domain.EmbeddingSettings) (*OllamaEmbedding, error) {
	model := settings.Model
	if model == "" {
		model = domain.DefaultEmbeddingModel
	}

	baseURL := strings.TrimRight(settings.BaseURL, "/")
	if baseURL == "" {
		baseURL = domain.DefaultOllamaHost
	}

	dimensions := settings.Dimensions
	if dimensions <= 0 {
		dimensions = domain.EmbeddingDimensions
	}

	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &OllamaEmbedding{
		model:      model,
		baseURL:    baseURL,
		dimensions: dimensions,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed generates embeddings for multiple texts in one call to /api/embed.
func (e *OllamaEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &domain.EmbeddingError{Err: &domain.TransientIOError{Op: "ollama embed", Err: err}}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.EmbeddingError{Err: &domain.TransientIOError{Op: "read embed", Err: err}}
	}

	var embResp ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, &domain.EmbeddingError{Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if embResp.Error != "" {
		return nil, &domain.EmbeddingError{Err: fmt.Errorf("ollama error: %s", embResp.Error)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.EmbeddingError{Err: fmt.Errorf("ollama returned status %d", resp.StatusCode)}
	}
	if len(embResp.Embeddings) != len(texts) {
		return nil, &domain.EmbeddingError{
			Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embResp.Embeddings)),
		}
	}

	for i, vec := range embResp.Embeddings {
		if len(vec) != e.dimensions {
			return nil, &domain.EmbeddingError{
				Err: fmt.Errorf("embedding %d: expected %d dimensions, got %d", i, e.dimensions, len(vec)),
			}
		}
	}
	return embResp.Embeddings, nil
}

// EmbedQuery generates an embedding for a search query
func (e *OllamaEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Dimensions returns the embedding dimension size
func (e *OllamaEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *OllamaEmbedding) Model() string {
	return e.model
}

// HealthCheck verifies the Ollama server answers.
func (e *OllamaEmbedding) HealthCheck(ctx context.Context) error {
	return pingOllama(ctx, e.client, e.baseURL)
}

// Close releases resources held by the embedding service
func (e *OllamaEmbedding) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// pingOllama lists local models as a cheap liveness probe.
func pingOllama(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return &domain.TransientIOError{Op: "ollama ping", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama returned status %d", domain.ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}
