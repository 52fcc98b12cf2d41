package extractors

import (
	"context"
	"log/slog"
	"strings"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// TextExtractor emits one chunk per blank-line separated paragraph.
type TextExtractor struct {
	logger *slog.Logger
}

// NewTextExtractor creates a plain text extractor.
func NewTextExtractor(cfg Config) *TextExtractor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TextExtractor{logger: logger}
}

// FileType returns text.
func (e *TextExtractor) FileType() domain.FileType {
	return domain.SourceTypeText
}

// Extract splits on blank lines. Invalid UTF-8 is dropped. Paragraphs longer
// than MaxSegmentLength are split on single newlines and every piece keeps
// the paragraph's index.
func (e *TextExtractor) Extract(ctx context.Context, data []byte, filename string, opts domain.ExtractOptions) (*domain.Extraction, error) {
	text := strings.ToValidUTF8(string(data), "")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	b := newBuilder(filename, domain.SourceTypeText, opts, e.logger)
	for idx, para := range strings.Split(text, "\n\n") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		segments := []string{para}
		if len([]rune(para)) > MaxSegmentLength {
			segments = greedySplit(strings.Split(para, "\n"), "\n", MaxSegmentLength)
		}
		for _, s := range segments {
			if err := b.add(s, domain.ChunkMetadata{ParagraphIndex: domain.Index(idx)}); err != nil {
				return nil, parseError(filename, err)
			}
		}
	}

	return b.extraction(nil), nil
}
