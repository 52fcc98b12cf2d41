package extractors

import (
	"context"
	"log/slog"
	"strings"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// WordExtractor emits one chunk per non-empty paragraph and one per table row.
type WordExtractor struct {
	logger *slog.Logger
}

// NewWordExtractor creates a .docx extractor.
func NewWordExtractor(cfg Config) *WordExtractor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WordExtractor{logger: logger}
}

// FileType returns word.
func (e *WordExtractor) FileType() domain.FileType {
	return domain.SourceTypeWord
}

// wordDocument is the body of word/document.xml. Only top-level paragraphs
// and tables are read; paragraphs inside table cells belong to their cell.
type wordDocument struct {
	Body struct {
		Paragraphs []xmlNode   `xml:"p"`
		Tables     []wordTable `xml:"tbl"`
	} `xml:"body"`
}

type wordTable struct {
	Rows []struct {
		Cells []struct {
			Paragraphs []xmlNode `xml:"p"`
		} `xml:"tc"`
	} `xml:"tr"`
}

// Extract reads paragraphs first, then table rows. Paragraph indexes count
// empty paragraphs too, so they match the position in the document.
func (e *WordExtractor) Extract(ctx context.Context, data []byte, filename string, opts domain.ExtractOptions) (*domain.Extraction, error) {
	zr, err := openPackage(data)
	if err != nil {
		return nil, parseError(filename, err)
	}

	var doc wordDocument
	if err := decodePart(zr, "word/document.xml", &doc); err != nil {
		return nil, parseError(filename, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := newBuilder(filename, domain.SourceTypeWord, opts, e.logger)

	for idx, p := range doc.Body.Paragraphs {
		text := strings.TrimSpace(p.plainText())
		if err := b.add(text, domain.ChunkMetadata{ParagraphIndex: domain.Index(idx)}); err != nil {
			return nil, parseError(filename, err)
		}
	}

	for ti, table := range doc.Body.Tables {
		for ri, row := range table.Rows {
			cells := make([]string, len(row.Cells))
			blank := true
			for ci, cell := range row.Cells {
				cells[ci] = strings.TrimSpace(joinParagraphs(cell.Paragraphs))
				if cells[ci] != "" {
					blank = false
				}
			}
			if blank {
				continue
			}

			meta := domain.ChunkMetadata{TableIndex: domain.Index(ti), RowIndex: domain.Index(ri)}
			if err := b.add(strings.Join(cells, " | "), meta); err != nil {
				return nil, parseError(filename, err)
			}
		}
	}

	return b.extraction(nil), nil
}
