package extractors

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/temporal"
)

// CSVExtractor emits one chunk per data row.
type CSVExtractor struct {
	analyzer *temporal.Analyzer
	logger   *slog.Logger
}

// NewCSVExtractor creates a CSV extractor.
func NewCSVExtractor(cfg Config) *CSVExtractor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVExtractor{analyzer: cfg.Analyzer, logger: logger}
}

// FileType returns csv.
func (e *CSVExtractor) FileType() domain.FileType {
	return domain.SourceTypeCSV
}

// Extract reads a header row followed by data rows. Content joins
// "column: value" pairs of the non-empty cells with " | ".
func (e *CSVExtractor) Extract(ctx context.Context, data []byte, filename string, opts domain.ExtractOptions) (*domain.Extraction, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &domain.Extraction{}, nil
	}
	if err != nil {
		return nil, parseError(filename, err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
		if columns[i] == "" {
			columns[i] = fmt.Sprintf("Column %d", i+1)
		}
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, parseError(filename, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table := temporal.NewTable(columns, records)

	var tables []domain.TableAnalysis
	var contexts []map[string]string
	if e.analyzer != nil && len(records) > 0 {
		analysis, rowCtx := e.analyzer.Analyze(table, "", opts.Temporal)
		contexts = rowCtx
		if len(analysis.DateColumns) > 0 {
			tables = append(tables, analysis)
		}
	}

	b := newBuilder(filename, domain.SourceTypeCSV, opts, e.logger)
	for i, row := range table.Rows {
		parts := make([]string, 0, len(columns))
		for c, col := range columns {
			if v := strings.TrimSpace(row[c]); v != "" {
				parts = append(parts, col+": "+v)
			}
		}
		if len(parts) == 0 {
			continue
		}

		meta := domain.ChunkMetadata{
			RowNumber:     i + 2,
			ColumnHeaders: columns,
		}
		if i < len(contexts) && contexts[i] != nil {
			meta.TemporalContext = contexts[i]
		}
		if err := b.add(strings.Join(parts, " | "), meta); err != nil {
			return nil, parseError(filename, err)
		}
	}

	return b.extraction(tables), nil
}

// sniffDelimiter picks ';' over ',' when the header line has more semicolons.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}
