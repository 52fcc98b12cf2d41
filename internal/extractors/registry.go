// Package extractors turns uploaded documents into provenance-tagged chunks,
// one extractor per file format.
package extractors

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
	"github.com/custodia-labs/supplychain-assistant/internal/temporal"
)

// Verify interface compliance
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry implements ExtractorRegistry keyed on file type.
type Registry struct {
	mu         sync.RWMutex
	extractors map[domain.FileType]driven.Extractor
}

// NewRegistry creates an empty extractor registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[domain.FileType]driven.Extractor),
	}
}

// Config configures the default extractors.
type Config struct {
	// Analyzer enriches tabular chunks with temporal context. Nil disables it.
	Analyzer *temporal.Analyzer
	Logger   *slog.Logger
}

// NewDefaultRegistry creates a registry holding an extractor for every supported format.
func NewDefaultRegistry(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := NewRegistry()
	r.Register(NewExcelExtractor(cfg))
	r.Register(NewCSVExtractor(cfg))
	r.Register(NewPDFExtractor(cfg))
	r.Register(NewWordExtractor(cfg))
	r.Register(NewPowerPointExtractor(cfg))
	r.Register(NewTextExtractor(cfg))
	return r
}

// Register adds an extractor, replacing any previous one for the same file type.
func (r *Registry) Register(extractor driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.extractors[extractor.FileType()] = extractor
}

// Get returns the extractor for a file type, or nil.
func (r *Registry) Get(fileType domain.FileType) driven.Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.extractors[fileType]
}

// List returns the registered file types in sorted order.
func (r *Registry) List() []domain.FileType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.FileType, 0, len(r.extractors))
	for t := range r.extractors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
