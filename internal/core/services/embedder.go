package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driving"
)

// Ensure Embedder implements driving.Embedder
var _ driving.Embedder = (*Embedder)(nil)

// Defaults for the embedder
const (
	DefaultEmbeddingCacheTTL  = 24 * time.Hour
	DefaultEmbeddingBatchSize = 10
	DefaultEmbeddingWorkers   = 4
)

// EmbedderConfig holds configuration for the Embedder
type EmbedderConfig struct {
	Service driven.EmbeddingService
	Cache   driven.EmbeddingCache // Optional: nil disables caching

	CacheTTL    time.Duration // default 24h
	BatchSize   int           // texts per endpoint call (default 10)
	Concurrency int           // sub-batches in flight (default 4)
	RateLimit   float64       // endpoint calls per second, 0 disables limiting

	Logger *slog.Logger
}

// Embedder wraps the embedding endpoint with a content-hash cache, a bounded
// worker pool and an optional rate limiter.
type Embedder struct {
	service   driven.EmbeddingService
	cache     driven.EmbeddingCache
	cacheTTL  time.Duration
	batchSize int
	pool      *ants.Pool
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewEmbedder creates an Embedder. Call Release when done.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("%w: embedding service is required", domain.ErrInvalidInput)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = DefaultEmbeddingCacheTTL
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultEmbeddingBatchSize
	}
	workers := cfg.Concurrency
	if workers <= 0 {
		workers = DefaultEmbeddingWorkers
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	return &Embedder{
		service:   cfg.Service,
		cache:     cfg.Cache,
		cacheTTL:  cacheTTL,
		batchSize: batchSize,
		pool:      pool,
		limiter:   limiter,
		logger:    logger,
	}, nil
}

// HashText returns the cache key of text: the hex SHA-256 of its exact bytes.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Embed returns the vector for text, consulting the cache first. A failed
// endpoint call is returned as an error and never cached.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := HashText(text)
	if vec, ok := e.cached(ctx, key); ok {
		return vec, nil
	}

	vectors, err := e.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || vectors[0] == nil {
		return nil, &domain.EmbeddingError{Err: domain.ErrEmbeddingUnavailable}
	}

	e.store(ctx, key, vectors[0])
	return vectors[0], nil
}

// EmbedBatch embeds texts in sub-batches of BatchSize, running up to
// Concurrency sub-batches at once. When a sub-batch call fails its texts are
// retried one by one, so a single bad text only blanks its own position.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results
	}

	// identical texts share one endpoint call
	positions := make(map[string][]int)
	var unique []string
	for i, text := range texts {
		if _, seen := positions[text]; !seen {
			unique = append(unique, text)
		}
		positions[text] = append(positions[text], i)
	}

	var misses []string
	for _, text := range unique {
		if vec, ok := e.cached(ctx, HashText(text)); ok {
			for _, pos := range positions[text] {
				results[pos] = vec
			}
			continue
		}
		misses = append(misses, text)
	}

	var wg sync.WaitGroup
	for start := 0; start < len(misses); start += e.batchSize {
		batch := misses[start:min(start+e.batchSize, len(misses))]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			vectors := e.embedSubBatch(ctx, batch)
			for k, text := range batch {
				for _, pos := range positions[text] {
					results[pos] = vectors[k]
				}
			}
		}
		if err := e.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	failed := 0
	for _, vec := range results {
		if vec == nil {
			failed++
		}
	}
	if failed > 0 {
		e.logger.Warn("embeddings unavailable", "failed", failed, "total", len(texts))
	}
	return results
}

func (e *Embedder) embedSubBatch(ctx context.Context, batch []string) [][]float32 {
	out := make([][]float32, len(batch))

	vectors, err := e.call(ctx, batch)
	if err == nil && len(vectors) == len(batch) {
		for k, vec := range vectors {
			if vec != nil {
				out[k] = vec
				e.store(ctx, HashText(batch[k]), vec)
			}
		}
		return out
	}
	if err != nil {
		e.logger.Debug("embedding sub-batch failed, retrying texts individually", "size", len(batch), "error", err)
	}
	if len(batch) == 1 {
		return out
	}

	for k, text := range batch {
		if ctx.Err() != nil {
			break
		}
		single, err := e.call(ctx, []string{text})
		if err != nil || len(single) == 0 || single[0] == nil {
			continue
		}
		out[k] = single[0]
		e.store(ctx, HashText(text), single[0])
	}
	return out
}

func (e *Embedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &domain.EmbeddingError{Err: err}
		}
	}
	vectors, err := e.service.Embed(ctx, texts)
	if err != nil {
		return nil, &domain.EmbeddingError{Err: err}
	}
	return vectors, nil
}

func (e *Embedder) cached(ctx context.Context, key string) ([]float32, bool) {
	if e.cache == nil {
		return nil, false
	}
	vec, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("embedding cache read failed", "error", err)
		return nil, false
	}
	return vec, ok
}

func (e *Embedder) store(ctx context.Context, key string, vec []float32) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, key, vec, e.cacheTTL); err != nil {
		e.logger.Warn("embedding cache write failed", "error", err)
	}
}

// Release stops the worker pool.
func (e *Embedder) Release() {
	e.pool.Release()
}
