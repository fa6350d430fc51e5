package reality

import (
	"context"
	"sync"
	"time"
)

// CachedClient wraps an OlapClient with a short TTL cache keyed by the
// requested database set, so a dev-loop reload that triggers several
// reconciliations in quick succession doesn't re-introspect the live
// database on every single one.
type CachedClient struct {
	inner OlapClient
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	tables    []LiveTable
	fetchedAt time.Time
}

// NewCachedClient wraps inner with a cache that expires entries after
// ttl. A ttl of zero disables caching (always introspects live).
func NewCachedClient(inner OlapClient, ttl time.Duration) *CachedClient {
	return &CachedClient{inner: inner, ttl: ttl, entries: map[string]cacheEntry{}}
}

func (c *CachedClient) ListTables(ctx context.Context, databases []string) ([]LiveTable, error) {
	key := cacheKey(databases)

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.ttl > 0 && time.Since(entry.fetchedAt) < c.ttl {
		return entry.tables, nil
	}

	tables, err := c.inner.ListTables(ctx, databases)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{tables: tables, fetchedAt: stubNow()}
	c.mu.Unlock()
	return tables, nil
}

// Invalidate drops every cached entry, so the next ListTables
// introspects the live database again.
func (c *CachedClient) Invalidate() {
	c.mu.Lock()
	c.entries = map[string]cacheEntry{}
	c.mu.Unlock()
}

func cacheKey(databases []string) string {
	key := ""
	for _, d := range databases {
		key += d + "\x00"
	}
	return key
}

// stubNow exists so tests can substitute a deterministic clock by
// reassigning it; production code leaves it as time.Now.
var stubNow = time.Now
