package invoke

import (
	"context"
	"sync"
	"time"
)

// ResultCache maps an argument fingerprint to a previously computed result.
// Implementations must be safe for concurrent lookup/store from multiple
// invocations; a race where two invocations with the same fingerprint both
// miss and both execute is acceptable (store is last-write-wins). Only
// successful results are ever stored.
type ResultCache interface {
	// Lookup returns the cached result for fingerprint, or miss. Expired
	// entries are invisible.
	Lookup(ctx context.Context, fingerprint string) (string, bool)
	// Store records a result with the given TTL. A TTL of zero or less means
	// "always recompute": the store is a no-op.
	Store(ctx context.Context, fingerprint, result string, ttl time.Duration)
	// Invalidate removes an entry regardless of expiry.
	Invalidate(ctx context.Context, fingerprint string)
}

type cacheEntry struct {
	result    string
	createdAt time.Time
	ttl       time.Duration
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// MemoryCache is the in-process ResultCache: a mutex-guarded map with lazy
// eviction of expired entries on lookup. No background sweeper.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time // injectable for tests
}

var _ ResultCache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Lookup(ctx context.Context, fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fingerprint]
	if !ok {
		return "", false
	}
	if e.expired(c.now()) {
		delete(c.entries, fingerprint)
		return "", false
	}
	return e.result, true
}

func (c *MemoryCache) Store(ctx context.Context, fingerprint, result string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = cacheEntry{result: result, createdAt: c.now(), ttl: ttl}
}

func (c *MemoryCache) Invalidate(ctx context.Context, fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fingerprint)
}

// Len reports the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
