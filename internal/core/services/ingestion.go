package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
)

// Ensure IngestionPipeline implements IngestionService
var _ driving.IngestionService = (*IngestionPipeline)(nil)

// AlertDetector finds anomalies in extracted chunks.
type AlertDetector interface {
	Detect(chunks []domain.Chunk) []domain.Alert
}

// IngestionConfig holds the collaborators of the ingestion pipeline.
type IngestionConfig struct {
	Files      driven.FileStore
	Alerts     driven.AlertStore
	Blobs      driven.BlobStore
	Extractors driven.ExtractorRegistry
	Detector   AlertDetector
	Retrieval  driving.RetrievalService
	Logger     *slog.Logger
}

// IngestionPipeline turns one uploaded file into alerts, temporal metadata
// and indexed chunks. Each run works on a single file and shares no state
// with concurrent runs.
type IngestionPipeline struct {
	files      driven.FileStore
	alerts     driven.AlertStore
	blobs      driven.BlobStore
	extractors driven.ExtractorRegistry
	detector   AlertDetector
	retrieval  driving.RetrievalService
	logger     *slog.Logger
}

// NewIngestionPipeline creates the pipeline. Every collaborator is required.
func NewIngestionPipeline(cfg IngestionConfig) (*IngestionPipeline, error) {
	if cfg.Files == nil || cfg.Alerts == nil || cfg.Blobs == nil ||
		cfg.Extractors == nil || cfg.Detector == nil || cfg.Retrieval == nil {
		return nil, fmt.Errorf("%w: ingestion pipeline is missing a collaborator", domain.ErrInvalidInput)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionPipeline{
		files:      cfg.Files,
		alerts:     cfg.Alerts,
		blobs:      cfg.Blobs,
		extractors: cfg.Extractors,
		detector:   cfg.Detector,
		retrieval:  cfg.Retrieval,
		logger:     logger,
	}, nil
}

// Process runs the pipeline for one file. On failure the file is marked
// failed with a truncated message and the error is returned so the caller
// can decide whether to retry. Alerts persisted before a failure are kept.
func (p *IngestionPipeline) Process(ctx context.Context, fileID string) (*domain.IngestionResult, error) {
	start := time.Now()

	file, err := p.files.Get(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("load file %s: %w", fileID, err)
	}

	logger := p.logger.With("file_id", file.ID, "owner_id", file.OwnerID, "filename", file.Filename)

	file.MarkProcessing()
	if err := p.files.UpdateStatus(ctx, file.ID, file.Status, ""); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	result, err := p.run(ctx, file, logger)
	if err != nil {
		file.MarkFailed(err)
		if uerr := p.files.UpdateStatus(ctx, file.ID, file.Status, file.ErrorMessage); uerr != nil {
			logger.Error("failed to mark file failed", "error", uerr)
		}
		logger.Warn("ingestion failed", "error", err, "transient", domain.IsTransient(err))
		return nil, err
	}

	file.MarkCompleted(result.ChunkCount)
	if err := p.files.Save(ctx, file); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}

	result.Duration = time.Since(start)
	logger.Info("ingestion completed",
		"chunks", result.ChunkCount,
		"indexed", result.IndexedCount,
		"alerts", result.AlertCount,
		"duration", result.Duration,
	)
	return result, nil
}

func (p *IngestionPipeline) run(ctx context.Context, file *domain.File, logger *slog.Logger) (*domain.IngestionResult, error) {
	// A retry or a reprocess replaces what an earlier run produced.
	if err := p.alerts.DeleteByFile(ctx, file.ID); err != nil {
		return nil, fmt.Errorf("clear previous alerts: %w", err)
	}
	if err := p.retrieval.DeleteFile(ctx, file.OwnerID, file.ID); err != nil {
		return nil, fmt.Errorf("clear previous chunks: %w", err)
	}

	data, err := p.blobs.Get(ctx, file.BlobKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("fetch blob %s: %w", file.BlobKey, err)
		}
		return nil, &domain.TransientIOError{Op: "fetch blob", Err: err}
	}

	extractor := p.extractors.Get(file.FileType)
	if extractor == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, file.FileType)
	}

	var override *domain.TemporalConfig
	if file.TemporalMetadata != nil && !file.TemporalMetadata.UserConfiguredColumns.IsEmpty() {
		override = file.TemporalMetadata.UserConfiguredColumns
	}

	uploadDate := file.CreatedAt
	if uploadDate.IsZero() {
		uploadDate = time.Now()
	}

	extraction, err := extractor.Extract(ctx, data, file.Filename, domain.ExtractOptions{
		UploadDate: uploadDate,
		Temporal:   override,
	})
	if err != nil {
		return nil, err
	}

	result := &domain.IngestionResult{FileID: file.ID, ChunkCount: len(extraction.Chunks)}

	alerts := p.detector.Detect(extraction.Chunks)
	if len(alerts) > 0 {
		batch := make([]*domain.Alert, len(alerts))
		now := time.Now()
		for i := range alerts {
			a := alerts[i]
			a.ID = domain.GenerateID()
			a.OwnerID = file.OwnerID
			a.FileID = file.ID
			a.ConversationID = file.ConversationID
			a.CreatedAt = now
			batch[i] = &a
		}
		if err := p.alerts.SaveBatch(ctx, batch); err != nil {
			return nil, fmt.Errorf("save alerts: %w", err)
		}
		result.AlertCount = len(batch)
		logger.Info("alerts detected", "count", len(batch))
	}

	if file.FileType.IsTabular() {
		meta := SummarizeTables(extraction.Tables, uploadDate, override)
		if err := p.files.SaveTemporalMetadata(ctx, file.ID, meta); err != nil {
			return nil, fmt.Errorf("save temporal metadata: %w", err)
		}
		file.TemporalMetadata = meta
	}

	if len(extraction.Chunks) == 0 {
		logger.Info("file has no extractable content")
		return result, nil
	}

	n, err := p.retrieval.Index(ctx, extraction.Chunks, file.OwnerID, file.ID)
	if err != nil {
		return nil, err
	}
	result.IndexedCount = n
	return result, nil
}

// SummarizeTables merges per-sheet analyses into the file-level temporal
// summary. Lead-time keys that repeat across sheets are prefixed with the
// sheet name.
func SummarizeTables(tables []domain.TableAnalysis, uploadDate time.Time, override *domain.TemporalConfig) *domain.TemporalMetadata {
	meta := &domain.TemporalMetadata{
		UploadDate:            uploadDate,
		DetectedDateColumns:   []string{},
		UserConfiguredColumns: override,
	}

	seen := make(map[string]bool)
	for _, t := range tables {
		for _, col := range t.DateColumns {
			if !seen[col] {
				seen[col] = true
				meta.DetectedDateColumns = append(meta.DetectedDateColumns, col)
			}
		}

		if t.TimeRange != nil {
			if meta.TimeRange == nil {
				tr := *t.TimeRange
				meta.TimeRange = &tr
			} else {
				if t.TimeRange.Earliest < meta.TimeRange.Earliest {
					meta.TimeRange.Earliest = t.TimeRange.Earliest
				}
				if t.TimeRange.Latest > meta.TimeRange.Latest {
					meta.TimeRange.Latest = t.TimeRange.Latest
				}
			}
		}

		for key, stats := range t.LeadTimeStats {
			if meta.LeadTimeStats == nil {
				meta.LeadTimeStats = make(map[string]domain.LeadTimeStats)
			}
			if _, exists := meta.LeadTimeStats[key]; exists && t.Sheet != "" {
				key = t.Sheet + ": " + key
			}
			meta.LeadTimeStats[key] = stats
		}

		meta.Trends = append(meta.Trends, t.Trends...)
	}

	return meta
}
