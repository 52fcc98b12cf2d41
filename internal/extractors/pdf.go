package extractors

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// PDFExtractor emits one chunk per page, splitting long pages on paragraph boundaries.
type PDFExtractor struct {
	logger *slog.Logger
}

// NewPDFExtractor creates a PDF extractor.
func NewPDFExtractor(cfg Config) *PDFExtractor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{logger: logger}
}

// FileType returns pdf.
func (e *PDFExtractor) FileType() domain.FileType {
	return domain.SourceTypePDF
}

// Extract reads the plain text of each page.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte, filename string, opts domain.ExtractOptions) (ext *domain.Extraction, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			ext = nil
			err = parseError(filename, fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, parseError(filename, err)
	}

	b := newBuilder(filename, domain.SourceTypePDF, opts, e.logger)
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, parseError(filename, fmt.Errorf("page %d: %w", i, err))
		}

		for idx, segment := range pageSegments(text) {
			meta := domain.ChunkMetadata{Page: i, ChunkIndex: domain.Index(idx)}
			if err := b.add(segment, meta); err != nil {
				return nil, parseError(filename, err)
			}
		}
	}

	return b.extraction(nil), nil
}

// pageSegments keeps a page whole unless it exceeds MaxSegmentLength.
func pageSegments(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len([]rune(text)) <= MaxSegmentLength {
		return []string{text}
	}
	return greedySplit(strings.Split(text, "\n\n"), "\n\n", MaxSegmentLength)
}
