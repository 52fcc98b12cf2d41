package extractors

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

const (
	relNS           = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	relTypeSlide    = relNS + "/slide"
	relTypeNotes    = relNS + "/notesSlide"
	presentationXML = "ppt/presentation.xml"
)

var slidePartPattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// PowerPointExtractor emits up to three chunks per slide: title, body and notes.
type PowerPointExtractor struct {
	logger *slog.Logger
}

// NewPowerPointExtractor creates a .pptx extractor.
func NewPowerPointExtractor(cfg Config) *PowerPointExtractor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PowerPointExtractor{logger: logger}
}

// FileType returns powerpoint.
func (e *PowerPointExtractor) FileType() domain.FileType {
	return domain.SourceTypePowerPoint
}

type presentation struct {
	SlideIDs []struct {
		RelID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type slideShape struct {
	Placeholder *struct {
		Type string `xml:"type,attr"`
	} `xml:"nvSpPr>nvPr>ph"`
	TxBody *struct {
		Paragraphs []xmlNode `xml:"p"`
	} `xml:"txBody"`
}

func (s slideShape) text() string {
	if s.TxBody == nil {
		return ""
	}
	return strings.TrimSpace(joinParagraphs(s.TxBody.Paragraphs))
}

func (s slideShape) isTitle() bool {
	return s.Placeholder != nil && (s.Placeholder.Type == "title" || s.Placeholder.Type == "ctrTitle")
}

type slide struct {
	Shapes []slideShape `xml:"cSld>spTree>sp"`
}

// Extract walks slides in presentation order. Only top-level text shapes
// contribute; grouped shapes and tables are ignored.
func (e *PowerPointExtractor) Extract(ctx context.Context, data []byte, filename string, opts domain.ExtractOptions) (*domain.Extraction, error) {
	zr, err := openPackage(data)
	if err != nil {
		return nil, parseError(filename, err)
	}

	parts, err := slideParts(zr)
	if err != nil {
		return nil, parseError(filename, err)
	}

	b := newBuilder(filename, domain.SourceTypePowerPoint, opts, e.logger)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		number := i + 1

		var s slide
		if err := decodePart(zr, part, &s); err != nil {
			return nil, parseError(filename, err)
		}

		var title string
		var body []string
		titleSeen := false
		for _, shape := range s.Shapes {
			if !titleSeen && shape.isTitle() {
				titleSeen = true
				title = shape.text()
				continue
			}
			if t := shape.text(); t != "" {
				body = append(body, t)
			}
		}

		if err := b.add(title, slideMeta(number, domain.SlideContentTitle)); err != nil {
			return nil, parseError(filename, err)
		}
		if err := b.add(strings.Join(body, "\n"), slideMeta(number, domain.SlideContentBody)); err != nil {
			return nil, parseError(filename, err)
		}

		notes, err := slideNotes(zr, part)
		if err != nil {
			return nil, parseError(filename, err)
		}
		if err := b.add(notes, slideMeta(number, domain.SlideContentNotes)); err != nil {
			return nil, parseError(filename, err)
		}
	}

	return b.extraction(nil), nil
}

func slideMeta(number int, contentType string) domain.ChunkMetadata {
	return domain.ChunkMetadata{SlideNumber: number, ContentType: contentType}
}

// slideParts lists slide part names in presentation order, falling back to
// numeric file order when the presentation part has no slide list.
func slideParts(zr *zip.Reader) ([]string, error) {
	var pres presentation
	var rels relationships
	presErr := decodePart(zr, presentationXML, &pres)
	relsErr := decodePart(zr, "ppt/_rels/presentation.xml.rels", &rels)

	if presErr == nil && relsErr == nil && len(pres.SlideIDs) > 0 {
		targets := make(map[string]string, len(rels.Rels))
		for _, r := range rels.Rels {
			if r.Type == relTypeSlide {
				targets[r.ID] = resolveTarget("ppt", r.Target)
			}
		}
		parts := make([]string, 0, len(pres.SlideIDs))
		for _, id := range pres.SlideIDs {
			if t, ok := targets[id.RelID]; ok {
				parts = append(parts, t)
			}
		}
		return parts, nil
	}
	if presErr != nil && !errors.Is(presErr, errPartNotFound) {
		return nil, presErr
	}

	type numbered struct {
		name string
		n    int
	}
	var found []numbered
	for _, f := range zr.File {
		m := slidePartPattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		found = append(found, numbered{name: f.Name, n: n})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	parts := make([]string, len(found))
	for i, f := range found {
		parts[i] = f.name
	}
	return parts, nil
}

// slideNotes returns the text of the notes body placeholder linked from a
// slide, or "" when the slide has no notes.
func slideNotes(zr *zip.Reader, slidePart string) (string, error) {
	dir, file := path.Split(slidePart)
	relsPart := path.Join(dir, "_rels", file+".rels")

	var rels relationships
	if err := decodePart(zr, relsPart, &rels); err != nil {
		if errors.Is(err, errPartNotFound) {
			return "", nil
		}
		return "", err
	}

	for _, r := range rels.Rels {
		if r.Type != relTypeNotes {
			continue
		}
		var notes slide
		if err := decodePart(zr, resolveTarget(path.Clean(dir), r.Target), &notes); err != nil {
			return "", fmt.Errorf("notes for %s: %w", slidePart, err)
		}
		for _, shape := range notes.Shapes {
			if shape.Placeholder != nil && shape.Placeholder.Type == "body" {
				return shape.text(), nil
			}
		}
		return "", nil
	}
	return "", nil
}
