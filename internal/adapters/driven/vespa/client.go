package vespa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

const (
	// Namespace is the document/v1 namespace used for every document type.
	Namespace = "supplychain"

	// ContentCluster is the content cluster declared in services.xml.
	ContentCluster = "supplychain"

	// defaultTargetHits is the nearestNeighbor candidate count.
	defaultTargetHits = 100
)

// Config holds Vespa connection configuration
type Config struct {
	// BaseURL is the Vespa container endpoint (e.g., http://localhost:8080)
	BaseURL string

	// Timeout for HTTP requests
	Timeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// client is the HTTP plumbing shared by the document and knowledge indexes.
type client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func newClient(cfg Config) *client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger,
	}
}

// statusError is a non-2xx answer from Vespa.
type statusError struct {
	Status string
	Code   int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("vespa returned %s: %s", e.Status, e.Body)
}

// docURL builds the document/v1 URL for one document.
func (c *client) docURL(docType, id string) string {
	return fmt.Sprintf("%s/document/v1/%s/%s/docid/%s", c.baseURL, Namespace, docType, url.PathEscape(id))
}

// selectionURL builds the document/v1 URL for a delete-by-selection visit.
func (c *client) selectionURL(docType, selection string) string {
	q := url.Values{}
	q.Set("selection", selection)
	q.Set("cluster", ContentCluster)
	return fmt.Sprintf("%s/document/v1/%s/%s/docid/?%s", c.baseURL, Namespace, docType, q.Encode())
}

// do sends a request with an optional JSON body and decodes a JSON response into out.
// Transport failures are wrapped as transient.
func (c *client) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &domain.TransientIOError{Op: "vespa " + method, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		serr := &statusError{Status: resp.Status, Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		if resp.StatusCode >= 500 {
			return &domain.TransientIOError{Op: "vespa " + method, Err: serr}
		}
		return serr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// search posts a query to the search API.
func (c *client) search(ctx context.Context, req map[string]any) (*searchResponse, error) {
	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/search/", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// healthCheck verifies the container is up.
func (c *client) healthCheck(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/state/v1/health", nil, nil); err != nil {
		return fmt.Errorf("vespa health check failed: %w", err)
	}
	return nil
}

// searchResponse is Vespa's search response format
type searchResponse struct {
	Root struct {
		Fields struct {
			TotalCount int64 `json:"totalCount"`
		} `json:"fields"`
		Children []searchHit `json:"children"`
	} `json:"root"`
}

type searchHit struct {
	ID        string          `json:"id"`
	Relevance float64         `json:"relevance"`
	Value     string          `json:"value,omitempty"`
	Fields    json.RawMessage `json:"fields,omitempty"`
	Children  []searchHit     `json:"children,omitempty"`
}

// quote escapes a value for use inside a YQL string literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// rankProfile picks the ranking profile for a mode; hybrid and semantic need a vector.
func rankProfile(mode domain.SearchMode, hasEmbedding bool) domain.SearchMode {
	switch mode {
	case domain.SearchModeTextOnly:
		return domain.SearchModeTextOnly
	case domain.SearchModeSemanticOnly:
		if hasEmbedding {
			return domain.SearchModeSemanticOnly
		}
		return domain.SearchModeTextOnly
	default:
		if hasEmbedding {
			return domain.SearchModeHybrid
		}
		return domain.SearchModeTextOnly
	}
}

// matchClause builds the lexical/vector part of a where clause for a profile.
func matchClause(profile domain.SearchMode, text string) string {
	nn := fmt.Sprintf("({targetHits:%d}nearestNeighbor(embedding,embedding))", defaultTargetHits)
	lexical := "userQuery()"
	switch profile {
	case domain.SearchModeSemanticOnly:
		return nn
	case domain.SearchModeHybrid:
		if strings.TrimSpace(text) == "" {
			return nn
		}
		return "(" + lexical + " or " + nn + ")"
	default:
		if strings.TrimSpace(text) == "" {
			return "true"
		}
		return lexical
	}
}

// queryRequest assembles the search API body shared by both indexes.
func queryRequest(yql, text string, embedding []float32, profile domain.SearchMode, hits int) map[string]any {
	req := map[string]any{
		"yql":             yql,
		"hits":            hits,
		"ranking.profile": string(profile),
	}
	if strings.TrimSpace(text) != "" {
		req["query"] = text
	}
	if profile != domain.SearchModeTextOnly && len(embedding) > 0 {
		req["input.query(embedding)"] = embedding
	}
	return req
}
