package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/custodia-labs/supplychain-assistant/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

var _ driven.EmbeddingCache = (*EmbeddingCache)(nil)

// EmbeddingCache stores vectors as little-endian float32 blobs under
// "<prefix>embedding:<key>".
type EmbeddingCache struct {
	client *redis.Client
	prefix string
}

// NewEmbeddingCache creates a cache namespaced under DefaultKeyPrefix.
func NewEmbeddingCache(client *redis.Client) *EmbeddingCache {
	return &EmbeddingCache{
		client: client,
		prefix: DefaultKeyPrefix + "embedding:",
	}
}

// Get returns the cached vector for key.
func (c *EmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get embedding: %w", err)
	}

	vec, err := decodeVector(data)
	if err != nil {
		// a corrupt entry is treated as a miss and overwritten on the next Set
		return nil, false, nil
	}
	return vec, true, nil
}

// Set stores vector under key for ttl.
func (c *EmbeddingCache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	if len(vector) == 0 {
		return errors.New("set embedding: empty vector")
	}
	if err := c.client.Set(ctx, c.prefix+key, encodeVector(vector), ttl).Err(); err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
