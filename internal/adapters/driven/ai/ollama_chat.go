package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
)

// Ensure OllamaChat implements LLMService
var _ driven.LLMService = (*OllamaChat)(nil)

// OllamaChat implements LLMService with Ollama's streaming /api/chat endpoint.
type OllamaChat struct {
	model       string
	baseURL     string
	temperature float64
	timeout     time.Duration
	client      *http.Client
}

// NewOllamaChat creates a new Ollama chat service. The connect timeout only
// bounds dialing, so an unreachable server fails fast while a long answer
// can keep streaming until the overall timeout.
func NewOllamaChat(settings domain.LLMSettings) (*OllamaChat, error) {
	model := settings.Model
	if model == "" {
		model = domain.DefaultChatModel
	}

	baseURL := strings.TrimRight(settings.BaseURL, "/")
	if baseURL == "" {
		baseURL = domain.DefaultOllamaHost
	}

	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	connectTimeout := settings.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext

	return &OllamaChat{
		model:       model,
		baseURL:     baseURL,
		temperature: settings.Temperature,
		timeout:     timeout,
		client:      &http.Client{Transport: transport},
	}, nil
}

type ollamaChatRequest struct {
	Model    string               `json:"model"`
	Messages []domain.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
	Options  map[string]any       `json:"options,omitempty"`
}

type ollamaChatLine struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// Chat starts a streamed completion. The returned stream owns the HTTP
// response and must be closed.
func (c *OllamaChat) Chat(ctx context.Context, messages []domain.ChatMessage, opts domain.GenerationOptions) (driven.ChatStream, error) {
	temperature := c.temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	options := map[string]any{"temperature": temperature}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
		Options:  options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, &domain.TransientIOError{Op: "ollama chat", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: ollama returned status %d: %s",
			domain.ErrServiceUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &ollamaStream{ctx: ctx, cancel: cancel, body: resp.Body, scanner: scanner}, nil
}

// Model returns the model name being used
func (c *OllamaChat) Model() string {
	return c.model
}

// Ping verifies the Ollama server answers.
func (c *OllamaChat) Ping(ctx context.Context) error {
	return pingOllama(ctx, c.client, c.baseURL)
}

// Close releases resources held by the chat service
func (c *OllamaChat) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// ollamaStream reads newline-delimited JSON deltas.
type ollamaStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	body    io.ReadCloser
	scanner *bufio.Scanner

	done      bool
	closeOnce sync.Once
}

// Next returns the next delta. After the delta with Done set it returns io.EOF.
func (s *ollamaStream) Next() (domain.GenerationDelta, error) {
	if s.done {
		return domain.GenerationDelta{}, io.EOF
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChatLine
		if err := json.Unmarshal(line, &chunk); err != nil {
			return domain.GenerationDelta{}, fmt.Errorf("malformed stream line: %w", err)
		}
		if chunk.Error != "" {
			return domain.GenerationDelta{}, fmt.Errorf("ollama error: %s", chunk.Error)
		}
		if chunk.Done {
			s.done = true
		}
		return domain.GenerationDelta{Content: chunk.Message.Content, Done: chunk.Done}, nil
	}

	if err := s.ctx.Err(); err != nil {
		return domain.GenerationDelta{}, err
	}
	if err := s.scanner.Err(); err != nil {
		return domain.GenerationDelta{}, &domain.TransientIOError{Op: "read chat stream", Err: err}
	}
	return domain.GenerationDelta{}, errors.New("chat stream ended before completion")
}

// Close stops reading and releases the connection.
func (s *ollamaStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}
