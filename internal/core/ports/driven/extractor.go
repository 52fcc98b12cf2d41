package driven

import (
	"context"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// Extractor turns raw file bytes into ordered, provenance-tagged chunks.
type Extractor interface {
	// Extract parses data. A corrupt or unsupported document fails with a
	// *domain.ParseError and no chunks; a document with no content yields
	// an empty extraction and no error.
	Extract(ctx context.Context, data []byte, filename string, opts domain.ExtractOptions) (*domain.Extraction, error)

	// FileType returns the format this extractor handles.
	FileType() domain.FileType
}

// ExtractorRegistry selects an extractor by file type.
type ExtractorRegistry interface {
	// Get returns the extractor for the file type, or nil if none is registered.
	Get(fileType domain.FileType) Extractor

	// Register adds or replaces the extractor for its file type.
	Register(extractor Extractor)

	// List returns the registered file types.
	List() []domain.FileType
}
