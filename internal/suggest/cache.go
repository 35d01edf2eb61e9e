package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores generated keyword lists by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, keywords []string, ttl time.Duration) error
	// EvictExpired drops expired entries and returns how many were removed.
	EvictExpired(ctx context.Context) (int, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type memoryEntry struct {
	keywords []string
	storedAt time.Time
	expires  time.Time
}

// MemoryCache is a bounded in-process cache. When full it evicts expired
// entries first, then the oldest entry.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	clock      Clock
}

// NewMemoryCache builds a cache holding at most maxEntries lists.
func NewMemoryCache(maxEntries int, clock Clock) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		clock:      clock,
	}
}

// Get returns the cached list for key if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.clock.Now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return slices.Clone(e.keywords), true, nil
}

// Set stores keywords under key for ttl.
func (c *MemoryCache) Set(_ context.Context, key string, keywords []string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictExpiredLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}
	c.entries[key] = memoryEntry{
		keywords: slices.Clone(keywords),
		storedAt: now,
		expires:  now.Add(ttl),
	}
	return nil
}

// EvictExpired drops every expired entry.
func (c *MemoryCache) EvictExpired(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictExpiredLocked(c.clock.Now()), nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) evictExpiredLocked(now time.Time) int {
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *MemoryCache) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.storedAt.Before(oldest) || (e.storedAt.Equal(oldest) && k < oldestKey) {
			oldestKey, oldest, found = k, e.storedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

// RedisCache stores lists as JSON strings with a native TTL.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached list for key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var keywords []string
	if err := json.Unmarshal(raw, &keywords); err != nil {
		return nil, false, fmt.Errorf("decode cached suggestions: %w", err)
	}
	return keywords, true, nil
}

// Set stores keywords under key for ttl.
func (c *RedisCache) Set(ctx context.Context, key string, keywords []string, ttl time.Duration) error {
	raw, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("encode suggestions: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// EvictExpired is a no-op; Redis expires keys itself.
func (c *RedisCache) EvictExpired(context.Context) (int, error) {
	return 0, nil
}
