package extractors

import (
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

// MaxSegmentLength bounds the PDF page fragments and text paragraph pieces
// produced by greedy splitting.
const MaxSegmentLength = 4000

// builder accumulates validated chunks for one extraction run.
type builder struct {
	filename   string
	sourceType domain.SourceType
	uploadDate time.Time
	logger     *slog.Logger
	chunks     []domain.Chunk
}

func newBuilder(filename string, sourceType domain.SourceType, opts domain.ExtractOptions, logger *slog.Logger) *builder {
	uploaded := opts.UploadDate
	if uploaded.IsZero() {
		uploaded = time.Now().UTC()
	}
	return &builder{
		filename:   filename,
		sourceType: sourceType,
		uploadDate: uploaded,
		logger:     logger,
	}
}

// add validates and appends a chunk. Blank content is skipped.
func (b *builder) add(content string, meta domain.ChunkMetadata) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	meta.Filename = b.filename
	uploaded := b.uploadDate
	meta.UploadDate = &uploaded

	chunk, err := domain.NewChunk(content, b.sourceType, meta)
	if err != nil {
		return err
	}
	if chunk.IsOversized() {
		b.logger.Warn("chunk exceeds maximum length",
			"filename", b.filename,
			"source_type", b.sourceType,
			"length", utf8.RuneCountInString(content))
	}
	b.chunks = append(b.chunks, chunk)
	return nil
}

func (b *builder) extraction(tables []domain.TableAnalysis) *domain.Extraction {
	b.logger.Info("extracted document",
		"filename", b.filename,
		"source_type", b.sourceType,
		"chunks", len(b.chunks))
	return &domain.Extraction{Chunks: b.chunks, Tables: tables}
}

func parseError(filename string, err error) error {
	return &domain.ParseError{Filename: filename, Err: err}
}

// greedySplit packs parts, each followed by sep, into segments while the
// running length stays under limit. A part that does not fit starts a new
// segment; a part longer than limit becomes a segment of its own.
func greedySplit(parts []string, sep string, limit int) []string {
	var (
		out    []string
		cur    strings.Builder
		curLen int
	)
	sepLen := utf8.RuneCountInString(sep)

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, p := range parts {
		n := utf8.RuneCountInString(p)
		if curLen+n >= limit {
			flush()
		}
		cur.WriteString(p)
		cur.WriteString(sep)
		curLen += n + sepLen
	}
	flush()
	return out
}
