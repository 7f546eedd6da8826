package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/bazaar/internal/ranking"
)

// DefaultCacheKey is the Redis key holding the cached weight record.
const DefaultCacheKey = "ranking:weights"

// DefaultCacheTTL bounds how long an admin change can take to reach readers
// that did not see the invalidation.
const DefaultCacheTTL = 5 * time.Minute

// CacheConfig configures CachedWeightSource.
type CacheConfig struct {
	Key    string
	TTL    time.Duration
	Logger *slog.Logger
}

// CachedWeightSource is a Redis read-through cache in front of a WeightStore.
// Redis failures fall through to the wrapped store.
type CachedWeightSource struct {
	client *redis.Client
	next   WeightStore
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedWeightSource wraps next with a Redis cache.
func NewCachedWeightSource(client *redis.Client, next WeightStore, cfg CacheConfig) *CachedWeightSource {
	if cfg.Key == "" {
		cfg.Key = DefaultCacheKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CachedWeightSource{
		client: client,
		next:   next,
		key:    cfg.Key,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
	}
}

// LoadWeights implements ranking.WeightSource.
// An absent record is cached as JSON null so misses stay cheap too.
func (c *CachedWeightSource) LoadWeights(ctx context.Context) (*ranking.PartialWeights, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	switch {
	case err == nil:
		var weights *ranking.PartialWeights
		if err := json.Unmarshal(data, &weights); err == nil {
			return weights, nil
		}
		c.logger.WarnContext(ctx, "discarding malformed cached ranking weights",
			"key", c.key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "ranking weights cache read failed",
			"key", c.key,
			"error", err)
	}

	weights, err := c.next.LoadWeights(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(weights)
	if err != nil {
		return weights, nil
	}
	if err := c.client.Set(ctx, c.key, encoded, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "ranking weights cache write failed",
			"key", c.key,
			"error", err)
	}
	return weights, nil
}

// SaveWeights implements WeightStore. The cache entry is dropped after a
// successful write.
func (c *CachedWeightSource) SaveWeights(ctx context.Context, weights *ranking.PartialWeights) error {
	if err := c.next.SaveWeights(ctx, weights); err != nil {
		return err
	}
	if err := c.Invalidate(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to invalidate ranking weights cache",
			"key", c.key,
			"error", err)
	}
	return nil
}

// Invalidate removes the cached record.
func (c *CachedWeightSource) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", c.key, err)
	}
	return nil
}
