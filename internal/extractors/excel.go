package extractors

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/temporal"
)

// ExcelExtractor emits one chunk per non-empty cell of every sheet.
type ExcelExtractor struct {
	analyzer *temporal.Analyzer
	logger   *slog.Logger
}

// NewExcelExtractor creates an Excel extractor.
func NewExcelExtractor(cfg Config) *ExcelExtractor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ExcelExtractor{analyzer: cfg.Analyzer, logger: logger}
}

// FileType returns excel.
func (e *ExcelExtractor) FileType() domain.FileType {
	return domain.SourceTypeExcel
}

// Extract reads every sheet. Row 1 supplies column headers; header cells are
// chunked like any other cell. Rows below the header are analysed for dates
// and their chunks carry the row's temporal context.
func (e *ExcelExtractor) Extract(ctx context.Context, data []byte, filename string, opts domain.ExtractOptions) (*domain.Extraction, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, parseError(filename, err)
	}
	defer f.Close()

	b := newBuilder(filename, domain.SourceTypeExcel, opts, e.logger)
	var tables []domain.TableAnalysis

	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, parseError(filename, fmt.Errorf("sheet %q: %w", sheet, err))
		}
		if len(rows) == 0 {
			continue
		}

		headers := sheetHeaders(rows)

		var contexts []map[string]string
		if e.analyzer != nil && len(rows) > 1 {
			table := temporal.NewTable(headers, rows[1:])
			table.NativeDates = nativeDateColumns(f, sheet, headers)
			analysis, rowCtx := e.analyzer.Analyze(table, sheet, opts.Temporal)
			contexts = rowCtx
			if len(analysis.DateColumns) > 0 {
				tables = append(tables, analysis)
			}
		}

		for r, row := range rows {
			for c, raw := range row {
				value := strings.TrimSpace(raw)
				if value == "" {
					continue
				}
				ref, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					return nil, parseError(filename, err)
				}

				meta := domain.ChunkMetadata{
					SheetName:    sheet,
					CellRef:      ref,
					Row:          r + 1,
					Column:       c + 1,
					Value:        raw,
					ColumnHeader: headers[c],
				}
				if r >= 1 && r-1 < len(contexts) && contexts[r-1] != nil {
					meta.TemporalContext = contexts[r-1]
				}

				content := fmt.Sprintf("%s: %s", headers[c], value)
				if err := b.add(content, meta); err != nil {
					return nil, parseError(filename, err)
				}
			}
		}
	}

	return b.extraction(tables), nil
}

// sheetHeaders reads row 1, naming blank or missing headers "Column n".
func sheetHeaders(rows [][]string) []string {
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	headers := make([]string, width)
	for c := range headers {
		if c < len(rows[0]) {
			headers[c] = strings.TrimSpace(rows[0][c])
		}
		if headers[c] == "" {
			headers[c] = fmt.Sprintf("Column %d", c+1)
		}
	}
	return headers
}

// builtin number formats that render dates or times
var dateNumFmts = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true,
	20: true, 21: true, 22: true, 45: true, 46: true, 47: true,
}

// nativeDateColumns reports the columns whose first data cell is formatted as a date.
func nativeDateColumns(f *excelize.File, sheet string, headers []string) map[string]bool {
	out := make(map[string]bool)
	for c, h := range headers {
		ref, err := excelize.CoordinatesToCellName(c+1, 2)
		if err != nil {
			continue
		}
		styleID, err := f.GetCellStyle(sheet, ref)
		if err != nil || styleID == 0 {
			continue
		}
		style, err := f.GetStyle(styleID)
		if err != nil || style == nil {
			continue
		}
		if dateNumFmts[style.NumFmt] {
			out[h] = true
			continue
		}
		if style.CustomNumFmt != nil && isDateFormat(*style.CustomNumFmt) {
			out[h] = true
		}
	}
	return out
}

func isDateFormat(format string) bool {
	f := strings.ToLower(format)
	return strings.Contains(f, "yy") || (strings.Contains(f, "d") && strings.Contains(f, "m"))
}
