package suggest_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-discovery/internal/clock/system"
	"github.com/JakeFAU/creator-discovery/internal/suggest"
)

func TestMemoryCacheExpires(t *testing.T) {
	t.Parallel()
	clock := system.NewManual(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	cache := suggest.NewMemoryCache(10, clock)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []string{"yoga"}, time.Minute))
	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"yoga"}, got)

	clock.Advance(time.Minute)
	_, ok, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheEvictsExpiredBeforeOldest(t *testing.T) {
	t.Parallel()
	clock := system.NewManual(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	cache := suggest.NewMemoryCache(2, clock)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "old", []string{"a"}, time.Hour))
	clock.Advance(time.Second)
	require.NoError(t, cache.Set(ctx, "short", []string{"b"}, time.Second))
	clock.Advance(2 * time.Second)
	require.NoError(t, cache.Set(ctx, "new", []string{"c"}, time.Hour))

	_, ok, _ := cache.Get(ctx, "old")
	assert.True(t, ok, "unexpired oldest entry should survive while an expired one exists")
	_, ok, _ = cache.Get(ctx, "new")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestMemoryCacheEvictsOldestWhenFull(t *testing.T) {
	t.Parallel()
	clock := system.NewManual(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	cache := suggest.NewMemoryCache(2, clock)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", []string{"a"}, time.Hour))
	clock.Advance(time.Second)
	require.NoError(t, cache.Set(ctx, "b", []string{"b"}, time.Hour))
	clock.Advance(time.Second)
	require.NoError(t, cache.Set(ctx, "c", []string{"c"}, time.Hour))

	_, ok, _ := cache.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = cache.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryCacheEvictExpired(t *testing.T) {
	t.Parallel()
	clock := system.NewManual(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	cache := suggest.NewMemoryCache(5, clock)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", []string{"a"}, time.Second))
	require.NoError(t, cache.Set(ctx, "b", []string{"b"}, time.Hour))
	clock.Advance(time.Minute)

	n, err := cache.EvictExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, cache.Len())
}

func TestRedisCacheRoundTripAndTTL(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := suggest.NewRedisCache(client)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "suggest:x")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "suggest:x", []string{"yoga", "pilates"}, time.Minute))
	got, ok, err := cache.Get(ctx, "suggest:x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"yoga", "pilates"}, got)
	assert.Equal(t, time.Minute, mr.TTL("suggest:x"))

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.Get(ctx, "suggest:x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheSurfacesErrors(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	cache := suggest.NewRedisCache(client)

	mr.Close()
	_, _, err := cache.Get(context.Background(), "suggest:x")
	require.Error(t, err)
}
