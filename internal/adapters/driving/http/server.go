package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f(ctx).
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Services groups the inbound ports the API exposes
type Services struct {
	Files      driving.FileService
	Chat       driving.ChatService
	Retrieval  driving.RetrievalService
	Knowledge  driving.KnowledgeService
	VespaAdmin driving.VespaAdminService
}

// Infrastructure groups the dependencies probed by /ready.
// Any of them may be nil.
type Infrastructure struct {
	DB    Pinger
	Redis Pinger
	Queue Pinger
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	version    string
	maxUpload  int64
	logger     *slog.Logger

	files      driving.FileService
	chat       driving.ChatService
	retrieval  driving.RetrievalService
	knowledge  driving.KnowledgeService
	vespaAdmin driving.VespaAdminService

	verifier    driven.TokenVerifier
	db          Pinger
	redisClient Pinger
	queue       Pinger
	limiter     *OwnerRateLimiter
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// CORSOrigins lists allowed origins; "*" allows any
	CORSOrigins []string

	// MaxUploadBytes bounds the multipart body of an upload
	MaxUploadBytes int64

	// MessagesPerMinute limits chat messages per owner (0 disables)
	MessagesPerMinute int

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		Version:           "dev",
		CORSOrigins:       []string{"*"},
		MaxUploadBytes:    50 << 20,
		MessagesPerMinute: 10,
	}
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, services Services, verifier driven.TokenVerifier, infra Infrastructure) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}

	s := &Server{
		router:      http.NewServeMux(),
		version:     cfg.Version,
		maxUpload:   cfg.MaxUploadBytes,
		logger:      cfg.Logger,
		files:       services.Files,
		chat:        services.Chat,
		retrieval:   services.Retrieval,
		knowledge:   services.Knowledge,
		vespaAdmin:  services.VespaAdmin,
		verifier:    verifier,
		db:          infra.DB,
		redisClient: infra.Redis,
		queue:       infra.Queue,
	}
	if cfg.MessagesPerMinute > 0 {
		s.limiter = NewOwnerRateLimiter(cfg.MessagesPerMinute, time.Minute)
	}

	s.setupRoutes()

	s.handler = NewRecoveryMiddleware(cfg.Logger).Handler(
		NewLoggingMiddleware(cfg.Logger).Handler(
			NewCORSMiddleware(cfg.CORSOrigins).Handler(s.router)))

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     s.handler,
		ReadTimeout: 60 * time.Second,
		// SSE responses clear their own write deadline
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	auth := NewAuthMiddleware(s.verifier)
	authed := func(h http.HandlerFunc) http.Handler {
		return auth.Authenticate(h)
	}

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Files
	s.router.Handle("POST /api/v1/files", authed(s.handleUploadFile))
	s.router.Handle("GET /api/v1/files", authed(s.handleListFiles))
	s.router.Handle("GET /api/v1/files/{id}", authed(s.handleGetFile))
	s.router.Handle("DELETE /api/v1/files/{id}", authed(s.handleDeleteFile))
	s.router.Handle("GET /api/v1/files/{id}/alerts", authed(s.handleFileAlerts))
	s.router.Handle("GET /api/v1/files/{id}/temporal", authed(s.handleGetTemporal))
	s.router.Handle("PUT /api/v1/files/{id}/temporal", authed(s.handleConfigureTemporal))

	// Alerts across files
	s.router.Handle("GET /api/v1/alerts", authed(s.handleOwnerAlerts))
	s.router.Handle("POST /api/v1/alerts/{id}/read", authed(s.handleMarkAlertRead))

	// Conversations
	s.router.Handle("POST /api/v1/conversations", authed(s.handleCreateConversation))
	s.router.Handle("GET /api/v1/conversations", authed(s.handleListConversations))
	s.router.Handle("GET /api/v1/conversations/{id}/messages", authed(s.handleListMessages))

	sendMessage := http.Handler(http.HandlerFunc(s.handleSendMessage))
	if s.limiter != nil {
		sendMessage = s.limiter.Handler(sendMessage)
	}
	s.router.Handle("POST /api/v1/conversations/{id}/messages", auth.Authenticate(sendMessage))

	// Search over the owner's documents
	s.router.Handle("POST /api/v1/search", authed(s.handleSearch))

	// Knowledge base
	s.router.Handle("GET /api/v1/knowledge/search", authed(s.handleKnowledgeSearch))
	s.router.Handle("POST /api/v1/knowledge", authed(s.handleAddKnowledge))
	s.router.Handle("GET /api/v1/knowledge/categories", authed(s.handleKnowledgeCategories))
	s.router.Handle("DELETE /api/v1/knowledge/{id}", authed(s.handleDeleteKnowledge))

	// Search cluster status
	s.router.Handle("GET /api/v1/admin/vespa/status", authed(s.handleVespaStatus))
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr, "version", s.version)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
