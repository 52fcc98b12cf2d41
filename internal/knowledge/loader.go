// Package knowledge turns reference files into knowledge base entries.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
)

// Format is a knowledge source file format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatPDF      Format = "pdf"
)

// DefaultChunkSize bounds the characters of one text entry.
const DefaultChunkSize = 4000

// ErrUnknownFormat is returned when the format cannot be derived from the file name.
var ErrUnknownFormat = errors.New("unknown knowledge file format")

var extensionFormats = map[string]Format{
	".json":     FormatJSON,
	".yaml":     FormatYAML,
	".yml":      FormatYAML,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".txt":      FormatText,
	".pdf":      FormatPDF,
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Base(path))
}

// Options describe how free-form files become entries. Structured files
// (JSON, YAML) carry their own fields and ignore everything but Format.
type Options struct {
	// Format overrides extension detection when set.
	Format Format

	Category    string
	Subcategory string
	Tags        []string

	// Title names text and PDF entries. Markdown takes titles from headings.
	Title string

	// ChunkSize bounds text entries (default DefaultChunkSize).
	ChunkSize int
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// PDF extracts page text. PDF files are rejected when nil.
	PDF    driven.Extractor
	Logger *slog.Logger
}

// Loader reads knowledge files.
type Loader struct {
	pdf    driven.Extractor
	logger *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(cfg LoaderConfig) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{pdf: cfg.PDF, logger: logger}
}

// LoadFile reads path and converts it to knowledge items.
func (l *Loader) LoadFile(ctx context.Context, path string, opts Options) ([]domain.KnowledgeItem, error) {
	if opts.Format == "" {
		f, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		opts.Format = f
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return l.Load(ctx, path, data, opts)
}

// Load converts file contents to knowledge items. source is recorded
// as the source_file metadata of free-form entries.
func (l *Loader) Load(ctx context.Context, source string, data []byte, opts Options) ([]domain.KnowledgeItem, error) {
	var (
		items []domain.KnowledgeItem
		err   error
	)

	switch opts.Format {
	case FormatJSON:
		items, err = parseJSON(data)
	case FormatYAML:
		items, err = parseYAML(data)
	case FormatMarkdown:
		if opts.Category == "" {
			return nil, fmt.Errorf("%w: category is required for markdown files", domain.ErrInvalidInput)
		}
		items = splitMarkdown(string(data), source, opts)
	case FormatText:
		if opts.Category == "" || opts.Title == "" {
			return nil, fmt.Errorf("%w: category and title are required for text files", domain.ErrInvalidInput)
		}
		items = splitText(string(data), source, opts)
	case FormatPDF:
		if opts.Category == "" || opts.Title == "" {
			return nil, fmt.Errorf("%w: category and title are required for pdf files", domain.ErrInvalidInput)
		}
		items, err = l.splitPDF(ctx, data, source, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
	if err != nil {
		return nil, err
	}

	l.logger.Info("loaded knowledge file", "source", source, "format", opts.Format, "items", len(items))
	return items, nil
}

type itemsFile struct {
	Items []domain.KnowledgeItem `json:"knowledge_items" yaml:"knowledge_items"`
}

func parseJSON(data []byte) ([]domain.KnowledgeItem, error) {
	var f itemsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse json knowledge: %w", err)
	}
	return f.Items, nil
}

func parseYAML(data []byte) ([]domain.KnowledgeItem, error) {
	var f itemsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml knowledge: %w", err)
	}
	return f.Items, nil
}

func newItem(opts Options, title, content string, meta map[string]string) domain.KnowledgeItem {
	item := domain.KnowledgeItem{
		Title:       title,
		Category:    opts.Category,
		Subcategory: opts.Subcategory,
		Content:     strings.TrimSpace(content),
		Metadata:    meta,
	}
	if len(opts.Tags) > 0 {
		item.Tags = append([]string(nil), opts.Tags...)
	}
	return item
}

// splitMarkdown emits one entry per "# " or "## " section. Content before
// the first heading gets a title derived from the file name.
func splitMarkdown(text, source string, opts Options) []domain.KnowledgeItem {
	type section struct {
		title string
		body  strings.Builder
	}

	var sections []*section
	current := &section{}
	flush := func() {
		if strings.TrimSpace(current.body.String()) != "" {
			sections = append(sections, current)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## ") {
			flush()
			current = &section{title: strings.TrimSpace(strings.TrimLeft(line, "#"))}
			continue
		}
		current.body.WriteString(line)
		current.body.WriteByte('\n')
	}
	flush()

	items := make([]domain.KnowledgeItem, 0, len(sections))
	for _, s := range sections {
		title := s.title
		if title == "" {
			title = "Section from " + filepath.Base(source)
		}
		items = append(items, newItem(opts, title, s.body.String(), map[string]string{
			"source_file": source,
		}))
	}
	return items
}

// splitText packs blank-line separated paragraphs into entries of at most
// ChunkSize characters. A single longer paragraph becomes its own entry.
func splitText(text, source string, opts Options) []domain.KnowledgeItem {
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	var items []domain.KnowledgeItem
	var current strings.Builder

	emit := func() {
		if strings.TrimSpace(current.String()) == "" {
			return
		}
		idx := len(items)
		title := opts.Title
		if idx > 0 {
			title = fmt.Sprintf("%s (Part %d)", opts.Title, idx+1)
		}
		items = append(items, newItem(opts, title, current.String(), map[string]string{
			"source_file": source,
			"chunk_index": strconv.Itoa(idx),
		}))
	}

	for _, para := range strings.Split(text, "\n\n") {
		if current.Len()+len(para) >= size {
			emit()
			current.Reset()
		}
		current.WriteString(para)
		current.WriteString("\n\n")
	}
	emit()
	return items
}

// splitPDF emits one entry per extracted page segment.
func (l *Loader) splitPDF(ctx context.Context, data []byte, source string, opts Options) ([]domain.KnowledgeItem, error) {
	if l.pdf == nil {
		return nil, fmt.Errorf("%w: pdf extraction is not configured", domain.ErrUnsupportedFileType)
	}

	ext, err := l.pdf.Extract(ctx, data, filepath.Base(source), domain.ExtractOptions{})
	if err != nil {
		return nil, err
	}

	items := make([]domain.KnowledgeItem, 0, len(ext.Chunks))
	for _, chunk := range ext.Chunks {
		page := chunk.Metadata.Page
		idx := 0
		if chunk.Metadata.ChunkIndex != nil {
			idx = *chunk.Metadata.ChunkIndex
		}

		title := fmt.Sprintf("%s - Page %d", opts.Title, page)
		if idx > 0 {
			title = fmt.Sprintf("%s (Part %d)", title, idx+1)
		}

		items = append(items, newItem(opts, title, chunk.Content, map[string]string{
			"source_file": source,
			"page":        strconv.Itoa(page),
			"chunk_index": strconv.Itoa(idx),
			"file_type":   string(domain.SourceTypePDF),
		}))
	}
	return items, nil
}
