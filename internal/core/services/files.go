package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
)

// Ensure fileService implements FileService
var _ driving.FileService = (*fileService)(nil)

// FileServiceConfig holds configuration for the file service
type FileServiceConfig struct {
	Files     driven.FileStore
	Alerts    driven.AlertStore
	Blobs     driven.BlobStore
	Queue     driven.TaskQueue
	Retrieval driving.RetrievalService

	MaxFileSize int64         // upload limit in bytes (default 50MB)
	DocumentTTL time.Duration // retention of blobs and file records (default 24h)

	Logger *slog.Logger
}

type fileService struct {
	files       driven.FileStore
	alerts      driven.AlertStore
	blobs       driven.BlobStore
	queue       driven.TaskQueue
	retrieval   driving.RetrievalService
	maxFileSize int64
	documentTTL time.Duration
	logger      *slog.Logger
}

// NewFileService creates a new FileService
func NewFileService(cfg FileServiceConfig) driving.FileService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = domain.DefaultMaxFileSize
	}
	ttl := cfg.DocumentTTL
	if ttl <= 0 {
		ttl = domain.DefaultDocumentTTL
	}
	return &fileService{
		files:       cfg.Files,
		alerts:      cfg.Alerts,
		blobs:       cfg.Blobs,
		queue:       cfg.Queue,
		retrieval:   cfg.Retrieval,
		maxFileSize: maxSize,
		documentTTL: ttl,
		logger:      logger,
	}
}

// Upload stores the file bytes, records a pending file and enqueues its processing.
func (s *fileService) Upload(ctx context.Context, req domain.UploadRequest) (*domain.File, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrInvalidInput)
	}
	filename := filepath.Base(strings.TrimSpace(req.Filename))
	if filename == "" || filename == "." || filename == "/" {
		return nil, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}

	fileType, ok := domain.DetectFileType(req.ContentType, filename)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, req.ContentType)
	}
	size := int64(len(req.Data))
	if size > s.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrFileTooLarge, size, s.maxFileSize)
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: file is empty", domain.ErrInvalidInput)
	}
	if domain.IsLegacyOffice(fileType, req.Data) {
		return nil, fmt.Errorf("%w: legacy binary %s format, save as %s", domain.ErrUnsupportedFileType, fileType, modernExtension[fileType])
	}

	now := time.Now()
	file := &domain.File{
		ID:             domain.GenerateID(),
		OwnerID:        req.OwnerID,
		ConversationID: req.ConversationID,
		Filename:       filename,
		FileType:       fileType,
		SizeBytes:      size,
		Status:         domain.FileStatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.documentTTL),
	}
	file.BlobKey = domain.BlobKeyFor(file.OwnerID, file.ID, file.Filename)

	if err := s.blobs.Put(ctx, file.BlobKey, req.Data, req.ContentType, file.ExpiresAt); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}
	if err := s.files.Save(ctx, file); err != nil {
		return nil, fmt.Errorf("save file: %w", err)
	}
	if err := s.enqueue(ctx, file); err != nil {
		return nil, err
	}

	s.logger.Info("file uploaded",
		"file_id", file.ID,
		"owner_id", file.OwnerID,
		"file_type", file.FileType,
		"size", file.SizeBytes,
	)
	return file, nil
}

// Get returns a file owned by ownerID. Files of other owners are reported as not found.
func (s *fileService) Get(ctx context.Context, ownerID, fileID string) (*domain.File, error) {
	file, err := s.files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return file, nil
}

func (s *fileService) List(ctx context.Context, ownerID string) ([]*domain.File, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrInvalidInput)
	}
	return s.files.ListByOwner(ctx, ownerID)
}

// Delete removes the indexed documents, alerts, blob and record of a file.
func (s *fileService) Delete(ctx context.Context, ownerID, fileID string) error {
	file, err := s.Get(ctx, ownerID, fileID)
	if err != nil {
		return err
	}

	if s.retrieval != nil {
		if err := s.retrieval.DeleteFile(ctx, ownerID, fileID); err != nil {
			return fmt.Errorf("delete indexed documents: %w", err)
		}
	}
	if err := s.alerts.DeleteByFile(ctx, fileID); err != nil {
		return fmt.Errorf("delete alerts: %w", err)
	}
	if err := s.blobs.Delete(ctx, file.BlobKey); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if err := s.files.Delete(ctx, fileID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete file: %w", err)
	}

	s.logger.Info("file deleted", "file_id", fileID, "owner_id", ownerID)
	return nil
}

func (s *fileService) Alerts(ctx context.Context, ownerID, fileID string) ([]*domain.Alert, error) {
	if _, err := s.Get(ctx, ownerID, fileID); err != nil {
		return nil, err
	}
	return s.alerts.ListByFile(ctx, fileID)
}

func (s *fileService) OwnerAlerts(ctx context.Context, ownerID string, unreadOnly bool) ([]*domain.Alert, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrInvalidInput)
	}
	return s.alerts.ListByOwner(ctx, ownerID, unreadOnly)
}

func (s *fileService) MarkAlertRead(ctx context.Context, ownerID, alertID string) error {
	if alertID == "" {
		return fmt.Errorf("%w: alert id is required", domain.ErrInvalidInput)
	}
	return s.alerts.MarkRead(ctx, ownerID, alertID)
}

// Temporal returns the stored temporal summary, or ErrNotFound when the
// file has none yet.
func (s *fileService) Temporal(ctx context.Context, ownerID, fileID string) (*domain.TemporalMetadata, error) {
	file, err := s.Get(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if file.TemporalMetadata == nil {
		return nil, domain.ErrNotFound
	}
	return file.TemporalMetadata, nil
}

// ConfigureTemporal stores a user override of date column detection and
// reprocesses the file with it.
func (s *fileService) ConfigureTemporal(ctx context.Context, ownerID, fileID string, cfg domain.TemporalConfig) (*domain.File, error) {
	file, err := s.Get(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	if !file.FileType.IsTabular() {
		return nil, fmt.Errorf("%w: temporal configuration applies to excel and csv files only", domain.ErrInvalidInput)
	}
	if err := validateTemporalConfig(&cfg); err != nil {
		return nil, err
	}

	meta := file.TemporalMetadata
	if meta == nil {
		meta = &domain.TemporalMetadata{UploadDate: file.CreatedAt, DetectedDateColumns: []string{}}
	}
	meta.UserConfiguredColumns = &cfg
	if err := s.files.SaveTemporalMetadata(ctx, file.ID, meta); err != nil {
		return nil, fmt.Errorf("save temporal configuration: %w", err)
	}
	file.TemporalMetadata = meta

	file.Status = domain.FileStatusPending
	file.ErrorMessage = ""
	if err := s.files.UpdateStatus(ctx, file.ID, file.Status, ""); err != nil {
		return nil, fmt.Errorf("reset status: %w", err)
	}
	if err := s.enqueue(ctx, file); err != nil {
		return nil, err
	}

	s.logger.Info("temporal configuration updated",
		"file_id", file.ID,
		"date_columns", cfg.DateColumns,
		"lead_time_pairs", len(cfg.LeadTimePairs),
	)
	return file, nil
}

var modernExtension = map[domain.FileType]string{
	domain.SourceTypeExcel:      ".xlsx",
	domain.SourceTypeWord:       ".docx",
	domain.SourceTypePowerPoint: ".pptx",
}

func (s *fileService) enqueue(ctx context.Context, file *domain.File) error {
	task := domain.NewProcessDocumentTask(file.OwnerID, file.ID)
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue processing: %w", err)
	}
	return nil
}

func validateTemporalConfig(cfg *domain.TemporalConfig) error {
	cols := make([]string, 0, len(cfg.DateColumns))
	for _, c := range cfg.DateColumns {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	cfg.DateColumns = cols

	for i, p := range cfg.LeadTimePairs {
		p.Start = strings.TrimSpace(p.Start)
		p.End = strings.TrimSpace(p.End)
		if p.Start == "" || p.End == "" {
			return fmt.Errorf("%w: lead time pair %d needs a start and an end column", domain.ErrInvalidInput, i)
		}
		if p.Start == p.End {
			return fmt.Errorf("%w: lead time pair %d uses %q twice", domain.ErrInvalidInput, i, p.Start)
		}
		cfg.LeadTimePairs[i] = p
	}

	if cfg.IsEmpty() {
		return fmt.Errorf("%w: date_columns or lead_time_pairs is required", domain.ErrInvalidInput)
	}
	return nil
}
