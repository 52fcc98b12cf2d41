package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxChunkContentLength is the soft ceiling on chunk size. Longer chunks are
// logged, never rejected.
const MaxChunkContentLength = 10000

// SourceType identifies the document format a chunk was extracted from.
type SourceType string

const (
	SourceTypeExcel      SourceType = "excel"
	SourceTypeCSV        SourceType = "csv"
	SourceTypePDF        SourceType = "pdf"
	SourceTypeWord       SourceType = "word"
	SourceTypePowerPoint SourceType = "powerpoint"
	SourceTypeText       SourceType = "text"
)

// IsTabular reports whether the source carries row/column data.
func (s SourceType) IsTabular() bool {
	return s == SourceTypeExcel || s == SourceTypeCSV
}

// Slide content kinds for PowerPoint chunks.
const (
	SlideContentTitle = "title"
	SlideContentBody  = "body"
	SlideContentNotes = "notes"
)

// ChunkMetadata is the provenance attached to a chunk. Which fields are set
// depends on the source type; Validate enforces the required set.
type ChunkMetadata struct {
	Filename   string     `json:"filename"`
	FileType   SourceType `json:"file_type"`
	UploadDate *time.Time `json:"upload_date,omitempty"`

	// Excel
	SheetName    string `json:"sheet_name,omitempty"`
	CellRef      string `json:"cell_ref,omitempty"`
	Row          int    `json:"row,omitempty"`
	Column       int    `json:"column,omitempty"`
	Value        string `json:"value,omitempty"`
	ColumnHeader string `json:"column_header,omitempty"`

	// CSV
	RowNumber     int      `json:"row_number,omitempty"`
	ColumnHeaders []string `json:"column_headers,omitempty"`

	// PDF
	Page       int  `json:"page,omitempty"`
	ChunkIndex *int `json:"chunk_index,omitempty"`

	// Word and text
	ParagraphIndex *int `json:"paragraph_index,omitempty"`
	TableIndex     *int `json:"table_index,omitempty"`
	RowIndex       *int `json:"row_index,omitempty"`

	// PowerPoint
	SlideNumber int    `json:"slide_number,omitempty"`
	ContentType string `json:"content_type,omitempty"`

	// TemporalContext maps date column name to a YYYY-MM-DD value for the
	// row this chunk came from.
	TemporalContext map[string]string `json:"temporal_context,omitempty"`
}

// Validate checks that the fields required for the metadata's source type are present.
func (m *ChunkMetadata) Validate() error {
	if m.Filename == "" {
		return fmt.Errorf("%w: metadata missing filename", ErrInvalidInput)
	}

	var missing []string
	switch m.FileType {
	case SourceTypeExcel:
		if m.SheetName == "" {
			missing = append(missing, "sheet_name")
		}
		if m.CellRef == "" {
			missing = append(missing, "cell_ref")
		}
		if m.Row < 1 || m.Column < 1 {
			missing = append(missing, "row/column")
		}
		if m.ColumnHeader == "" {
			missing = append(missing, "column_header")
		}
	case SourceTypeCSV:
		if m.RowNumber < 1 {
			missing = append(missing, "row_number")
		}
		if len(m.ColumnHeaders) == 0 {
			missing = append(missing, "column_headers")
		}
	case SourceTypePDF:
		if m.Page < 1 {
			missing = append(missing, "page")
		}
		if m.ChunkIndex == nil {
			missing = append(missing, "chunk_index")
		}
	case SourceTypeWord:
		isTableRow := m.TableIndex != nil && m.RowIndex != nil
		if m.ParagraphIndex == nil && !isTableRow {
			missing = append(missing, "paragraph_index or table_index/row_index")
		}
	case SourceTypePowerPoint:
		if m.SlideNumber < 1 {
			missing = append(missing, "slide_number")
		}
		switch m.ContentType {
		case SlideContentTitle, SlideContentBody, SlideContentNotes:
		default:
			missing = append(missing, "content_type")
		}
	case SourceTypeText:
		if m.ParagraphIndex == nil {
			missing = append(missing, "paragraph_index")
		}
	default:
		return fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, m.FileType)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s metadata missing %s", ErrInvalidInput, m.FileType, strings.Join(missing, ", "))
	}
	return nil
}

// Chunk is the smallest extracted unit of document content, carrying the
// provenance needed to cite it.
type Chunk struct {
	Content    string        `json:"content"`
	Metadata   ChunkMetadata `json:"metadata"`
	SourceType SourceType    `json:"source_type"`
}

// NewChunk builds a validated chunk. Content must contain a non-space
// character and the metadata must carry the fields required for sourceType.
func NewChunk(content string, sourceType SourceType, meta ChunkMetadata) (Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return Chunk{}, fmt.Errorf("%w: chunk content cannot be empty", ErrInvalidInput)
	}
	meta.FileType = sourceType
	if err := meta.Validate(); err != nil {
		return Chunk{}, err
	}
	return Chunk{Content: content, Metadata: meta, SourceType: sourceType}, nil
}

// IsOversized reports whether the content exceeds MaxChunkContentLength.
func (c Chunk) IsOversized() bool {
	return len([]rune(c.Content)) > MaxChunkContentLength
}

// Index returns a pointer to i, for the optional index fields of ChunkMetadata.
func Index(i int) *int {
	return &i
}

// ExtractOptions tunes a single extraction run.
type ExtractOptions struct {
	// UploadDate is stamped on every chunk. Zero means now.
	UploadDate time.Time

	// Temporal replaces automatic date column detection for tabular files.
	Temporal *TemporalConfig
}

// TableAnalysis is the temporal analysis of one sheet or CSV body.
type TableAnalysis struct {
	Sheet         string                   `json:"sheet,omitempty"`
	DateColumns   []string                 `json:"date_columns"`
	LeadTimePairs []LeadTimePair           `json:"lead_time_pairs,omitempty"`
	LeadTimeStats map[string]LeadTimeStats `json:"lead_time_stats,omitempty"`
	TimeRange     *TimeRange               `json:"time_range,omitempty"`
	Trends        []Trends                 `json:"trends,omitempty"`
}

// Extraction is the output of parsing one file.
type Extraction struct {
	Chunks []Chunk
	// Tables is set for tabular sources only, one entry per sheet.
	Tables []TableAnalysis
}
