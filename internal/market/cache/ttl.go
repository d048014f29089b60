package cache

import (
	"context"
	"sync"
	"time"
)

// FetchFunc produces a value on cache miss.
type FetchFunc func(ctx context.Context) (interface{}, error)

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// TTLCache is an in-process cache with per-entry expiry. Eviction is lazy:
// an expired entry is overwritten on the next access for its key, never
// swept in the background. Concurrent fetches for the same key are allowed
// to race; the last complete result wins and a reader never observes a
// half-written entry.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	hits    int64
	misses  int64
}

type cacheEntry struct {
	value   interface{}
	expires time.Time
}

// NewTTLCache creates an empty cache.
func NewTTLCache() *TTLCache {
	return &TTLCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached value for key if present and unexpired.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists || time.Now().After(entry.expires) {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return entry.value, true
}

// Set stores value under key with the given TTL, replacing any previous
// entry for the key.
func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expires: time.Now().Add(ttl)}
}

// GetOrFetch returns the cached value for key, or invokes fetch, stores the
// result with the TTL, and returns it. A fetch error is returned without
// writing anything to the cache.
func (c *TTLCache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (interface{}, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.Set(key, value, ttl)
	return value, nil
}

// Stats returns hit/miss counters and the current entry count, expired
// entries included (they are only reclaimed on access).
func (c *TTLCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}
