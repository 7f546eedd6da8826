package settings

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/bazaar/internal/ranking"
)

func newTestCache(t *testing.T, next WeightStore) (*CachedWeightSource, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cache := NewCachedWeightSource(client, next, CacheConfig{TTL: time.Minute, Logger: logger})
	return cache, mr
}

func TestCachedWeightSource_ReadThrough(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryWeightStore()
	require.NoError(t, store.SaveWeights(ctx, &ranking.PartialWeights{Rating: ptr(0.6)}))

	cache, mr := newTestCache(t, store)

	first, err := cache.LoadWeights(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 0.6, *first.Rating)
	assert.Equal(t, 1, store.Loads())
	assert.True(t, mr.Exists(DefaultCacheKey))

	second, err := cache.LoadWeights(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.Loads(), "second read should be served from cache")

	mr.FastForward(2 * time.Minute)
	_, err = cache.LoadWeights(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Loads(), "expired entry should be reloaded")
}

func TestCachedWeightSource_CachesAbsentRecord(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryWeightStore()
	cache, mr := newTestCache(t, store)

	for i := 0; i < 3; i++ {
		got, err := cache.LoadWeights(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.Equal(t, 1, store.Loads())

	cached, err := mr.Get(DefaultCacheKey)
	require.NoError(t, err)
	assert.Equal(t, "null", cached)
}

func TestCachedWeightSource_SaveInvalidates(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryWeightStore()
	cache, mr := newTestCache(t, store)

	_, err := cache.LoadWeights(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists(DefaultCacheKey))

	require.NoError(t, cache.SaveWeights(ctx, &ranking.PartialWeights{Orders: ptr(0.5)}))
	assert.False(t, mr.Exists(DefaultCacheKey))

	got, err := cache.LoadWeights(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0.5, *got.Orders)
}

func TestCachedWeightSource_RedisDownFallsThrough(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryWeightStore()
	require.NoError(t, store.SaveWeights(ctx, &ranking.PartialWeights{Stock: ptr(0.05)}))
	cache, mr := newTestCache(t, store)

	mr.Close()

	got, err := cache.LoadWeights(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0.05, *got.Stock)
}

func TestCachedWeightSource_MalformedEntryReloaded(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryWeightStore()
	cache, mr := newTestCache(t, store)

	require.NoError(t, mr.Set(DefaultCacheKey, "{not json"))

	got, err := cache.LoadWeights(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, store.Loads())
}

type failingStore struct{ err error }

func (f failingStore) LoadWeights(context.Context) (*ranking.PartialWeights, error) {
	return nil, f.err
}

func (f failingStore) SaveWeights(context.Context, *ranking.PartialWeights) error {
	return f.err
}

func TestCachedWeightSource_StoreErrorNotCached(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("database unavailable")
	cache, mr := newTestCache(t, failingStore{err: storeErr})

	_, err := cache.LoadWeights(ctx)
	assert.ErrorIs(t, err, storeErr)
	assert.False(t, mr.Exists(DefaultCacheKey))

	assert.ErrorIs(t, cache.SaveWeights(ctx, nil), storeErr)
}

func TestCachedWeightSource_WithProviderFallsBackToDefaults(t *testing.T) {
	cache, _ := newTestCache(t, failingStore{err: errors.New("boom")})
	provider := ranking.NewWeightProvider(cache, nil)

	assert.Equal(t, ranking.DefaultWeights(), provider.GetWeights(context.Background()))
}
