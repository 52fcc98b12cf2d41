package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// ReadyResponse reports each dependency checked by /ready
type ReadyResponse struct {
	Status string            `json:"status" example:"ready"`
	Checks map[string]string `json:"checks"`
}

// CreateConversationRequest is the body of POST /conversations
type CreateConversationRequest struct {
	Title string `json:"title" example:"Stock review"`
}

// SendMessageRequest is the body of POST /conversations/{id}/messages
type SendMessageRequest struct {
	Content string `json:"content" example:"Which products are below minimum stock?"`
}

// SearchRequest is the body of POST /search
type SearchRequest struct {
	Query  string `json:"query" example:"lead time supplier A"`
	FileID string `json:"file_id,omitempty"`
	TopK   int    `json:"top_k,omitempty" example:"5"`
}

// SearchResponse carries matched chunks and the formatted context
type SearchResponse struct {
	Results []domain.SearchResult `json:"results"`
	Context string                `json:"context"`
	Count   int                   `json:"count"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Checks the database, Redis and the search cluster schemas
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	probe := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}
	probe("postgres", s.db)
	probe("redis", s.redisClient)
	probe("queue", s.queue)

	if s.vespaAdmin != nil {
		status, err := s.vespaAdmin.Status(ctx)
		switch {
		case err != nil:
			checks["vespa"] = err.Error()
			ready = false
		case !status.Ready():
			msg := status.Error
			if msg == "" {
				msg = "schemas not deployed"
			}
			checks["vespa"] = msg
			ready = false
		default:
			checks["vespa"] = "ok"
		}
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not ready", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// File endpoints

// handleUploadFile godoc
// @Summary      Upload a file
// @Description  Stores the file and queues it for ingestion
// @Tags         Files
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file             formData  file    true   "Document to ingest"
// @Param        conversation_id  formData  string  false  "Conversation to attach the file to"
// @Success      202  {object}  domain.File
// @Failure      400  {object}  ErrorResponse
// @Failure      413  {object}  ErrorResponse
// @Failure      415  {object}  ErrorResponse
// @Router       /files [post]
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	// Leave headroom for the multipart envelope; the service enforces the exact limit.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, domain.ErrFileTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	file, err := s.files.Upload(r.Context(), domain.UploadRequest{
		OwnerID:        ownerID(r),
		ConversationID: r.FormValue("conversation_id"),
		Filename:       header.Filename,
		ContentType:    header.Header.Get("Content-Type"),
		Data:           data,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, file)
}

// handleListFiles godoc
// @Summary      List files
// @Tags         Files
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  domain.File
// @Router       /files [get]
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.files.List(r.Context(), ownerID(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if files == nil {
		files = []*domain.File{}
	}
	writeJSON(w, http.StatusOK, files)
}

// handleGetFile godoc
// @Summary      Get a file
// @Tags         Files
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "File ID"
// @Success      200  {object}  domain.File
// @Failure      404  {object}  ErrorResponse
// @Router       /files/{id} [get]
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	file, err := s.files.Get(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// handleDeleteFile godoc
// @Summary      Delete a file
// @Description  Removes the blob, the record and every indexed chunk
// @Tags         Files
// @Security     BearerAuth
// @Param        id   path  string  true  "File ID"
// @Success      204
// @Failure      404  {object}  ErrorResponse
// @Router       /files/{id} [delete]
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.files.Delete(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFileAlerts godoc
// @Summary      List a file's alerts
// @Tags         Alerts
// @Produce      json
// @Security     BearerAuth
// @Param        id   path   string  true  "File ID"
// @Success      200  {array}  domain.Alert
// @Router       /files/{id}/alerts [get]
func (s *Server) handleFileAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.files.Alerts(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*domain.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// handleOwnerAlerts godoc
// @Summary      List alerts across files
// @Tags         Alerts
// @Produce      json
// @Security     BearerAuth
// @Param        unread  query  bool  false  "Only unread alerts"
// @Success      200  {array}  domain.Alert
// @Router       /alerts [get]
func (s *Server) handleOwnerAlerts(w http.ResponseWriter, r *http.Request) {
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	alerts, err := s.files.OwnerAlerts(r.Context(), ownerID(r), unreadOnly)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*domain.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// handleMarkAlertRead godoc
// @Summary      Mark an alert read
// @Tags         Alerts
// @Security     BearerAuth
// @Param        id   path  string  true  "Alert ID"
// @Success      204
// @Failure      404  {object}  ErrorResponse
// @Router       /alerts/{id}/read [post]
func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	if err := s.files.MarkAlertRead(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetTemporal godoc
// @Summary      Get temporal metadata
// @Tags         Files
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "File ID"
// @Success      200  {object}  domain.TemporalMetadata
// @Failure      404  {object}  ErrorResponse
// @Router       /files/{id}/temporal [get]
func (s *Server) handleGetTemporal(w http.ResponseWriter, r *http.Request) {
	meta, err := s.files.Temporal(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// handleConfigureTemporal godoc
// @Summary      Override date columns
// @Description  Stores user-chosen date columns and lead-time pairs, then reprocesses the file
// @Tags         Files
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "File ID"
// @Param        request  body      domain.TemporalConfig  true  "Override"
// @Success      202      {object}  domain.File
// @Failure      400      {object}  ErrorResponse
// @Router       /files/{id}/temporal [put]
func (s *Server) handleConfigureTemporal(w http.ResponseWriter, r *http.Request) {
	var cfg domain.TemporalConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	file, err := s.files.ConfigureTemporal(r.Context(), ownerID(r), r.PathValue("id"), cfg)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, file)
}

// Conversation endpoints

// handleCreateConversation godoc
// @Summary      Create a conversation
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CreateConversationRequest  false  "Title"
// @Success      201      {object}  domain.Conversation
// @Router       /conversations [post]
func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	conv, err := s.chat.CreateConversation(r.Context(), ownerID(r), req.Title)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// handleListConversations godoc
// @Summary      List conversations
// @Tags         Chat
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  domain.Conversation
// @Router       /conversations [get]
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.chat.ListConversations(r.Context(), ownerID(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if convs == nil {
		convs = []*domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// handleListMessages godoc
// @Summary      Conversation history
// @Tags         Chat
// @Produce      json
// @Security     BearerAuth
// @Param        id   path   string  true  "Conversation ID"
// @Success      200  {array}  domain.Message
// @Failure      404  {object}  ErrorResponse
// @Router       /conversations/{id}/messages [get]
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.chat.Messages(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleSendMessage godoc
// @Summary      Ask a question
// @Description  Streams the grounded answer as Server-Sent Events. The last event has is_final set and carries the citations.
// @Tags         Chat
// @Accept       json
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        id       path      string              true  "Conversation ID"
// @Param        request  body      SendMessageRequest  true  "Question"
// @Success      200      {object}  domain.ChatChunk
// @Failure      400      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Failure      429      {object}  ErrorResponse
// @Router       /conversations/{id}/messages [post]
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	stream, err := s.chat.Stream(r.Context(), ownerID(r), r.PathValue("id"), req.Content)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer stream.Close()

	s.streamSSE(w, r, stream)
}

// Search endpoints

// handleSearch godoc
// @Summary      Search documents
// @Description  Hybrid search over the caller's indexed documents
// @Tags         Search
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      SearchRequest  true  "Query"
// @Success      200      {object}  SearchResponse
// @Failure      400      {object}  ErrorResponse
// @Router       /search [post]
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := s.retrieval.Search(r.Context(), domain.RetrievalRequest{
		Query:   req.Query,
		OwnerID: ownerID(r),
		FileID:  req.FileID,
		TopK:    req.TopK,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if results == nil {
		results = []domain.SearchResult{}
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Results: results,
		Context: s.retrieval.BuildContext(results),
		Count:   len(results),
	})
}

// Knowledge endpoints

// handleKnowledgeSearch godoc
// @Summary      Search the knowledge base
// @Tags         Knowledge
// @Produce      json
// @Security     BearerAuth
// @Param        q         query  string  true   "Query"
// @Param        category  query  string  false  "Category filter"
// @Param        tags      query  string  false  "Comma-separated tags"
// @Param        top_k     query  int     false  "Result count"
// @Success      200  {array}  domain.KnowledgeResult
// @Router       /knowledge/search [get]
func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := strings.TrimSpace(q.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	query := domain.KnowledgeQuery{
		Text:     text,
		Category: q.Get("category"),
		TopK:     domain.DefaultTopK,
	}
	if raw := q.Get("top_k"); raw != "" {
		topK, err := strconv.Atoi(raw)
		if err != nil || topK <= 0 {
			writeError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		query.TopK = topK
	}
	if raw := q.Get("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				query.Tags = append(query.Tags, tag)
			}
		}
	}

	results, err := s.knowledge.Search(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if results == nil {
		results = []domain.KnowledgeResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// handleAddKnowledge godoc
// @Summary      Add a knowledge item
// @Tags         Knowledge
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      domain.KnowledgeItem  true  "Item"
// @Success      201      {object}  domain.KnowledgeItem
// @Failure      400      {object}  ErrorResponse
// @Router       /knowledge [post]
func (s *Server) handleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	var item domain.KnowledgeItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.knowledge.Add(r.Context(), &item); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleKnowledgeCategories godoc
// @Summary      List knowledge categories
// @Tags         Knowledge
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  domain.CategoryCount
// @Router       /knowledge/categories [get]
func (s *Server) handleKnowledgeCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.knowledge.Categories(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if categories == nil {
		categories = []domain.CategoryCount{}
	}
	writeJSON(w, http.StatusOK, categories)
}

// handleDeleteKnowledge godoc
// @Summary      Delete a knowledge item
// @Tags         Knowledge
// @Security     BearerAuth
// @Param        id   path  string  true  "Item ID"
// @Success      204
// @Failure      404  {object}  ErrorResponse
// @Router       /knowledge/{id} [delete]
func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	if err := s.knowledge.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Vespa admin endpoints

// handleVespaStatus godoc
// @Summary      Search cluster status
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.VespaStatus
// @Router       /admin/vespa/status [get]
func (s *Server) handleVespaStatus(w http.ResponseWriter, r *http.Request) {
	if s.vespaAdmin == nil {
		writeError(w, http.StatusServiceUnavailable, "search cluster admin is not configured")
		return
	}
	status, err := s.vespaAdmin.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Helper functions

// mapError translates a service error into an HTTP status
func mapError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps err and hides internal details behind a generic message
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := mapError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// sseEvent formats one Server-Sent Events data frame
func sseEvent(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("data: %s\n\n", data)), nil
}
