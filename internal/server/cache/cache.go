// Package cache provides the relay's response cache.
// It uses patrickmn/go-cache for TTL-based expiry; entries are also dropped
// whenever the feed changes, so a cached projection is never stale.
package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/agentstation/hitlfeed/pkg/feed"
)

// Cache wraps go-cache with read-through loading and change-driven invalidation.
type Cache struct {
	store         *gocache.Cache
	mu            sync.Mutex // orders Clear against Remember's store step
	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
}

// New creates a new cache with the given TTL and cleanup interval.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	return &Cache{
		store: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Key joins parts into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Get retrieves a value from the cache.
func (c *Cache) Get(key string) (any, bool) {
	v, ok := c.store.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores a value in the cache with default TTL.
func (c *Cache) Set(key string, value any) {
	c.store.Set(key, value, gocache.DefaultExpiration)
}

// Remember returns the cached value for key, calling load and caching its
// result on a miss. Concurrent misses may each call load. A result is not
// cached when the cache was cleared while load ran, since it may predate
// the change that caused the clear.
func (c *Cache) Remember(key string, load func() any) any {
	if v, ok := c.Get(key); ok {
		return v
	}
	generation := c.invalidations.Load()
	v := load()

	c.mu.Lock()
	if c.invalidations.Load() == generation {
		c.Set(key, v)
	}
	c.mu.Unlock()
	return v
}

// Delete removes a value from the cache.
func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

// Clear removes all items from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Flush()
	c.invalidations.Add(1)
}

// Listener returns a feed.Listener that clears the cache on every store change.
func (c *Cache) Listener() feed.Listener {
	return func(feed.Change) { c.Clear() }
}

// ItemCount returns the number of items in the cache.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}

// Stats are cache counters.
type Stats struct {
	ItemCount     int    `json:"item_count"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
}

// GetStats returns current cache statistics.
func (c *Cache) GetStats() Stats {
	return Stats{
		ItemCount:     c.store.ItemCount(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
