package geocoding

import (
	"sync"

	"github.com/couchcryptid/pinmap-service/internal/domain"
)

// Cache maps quantized coordinates to resolved locations for the life of the
// process. Entries are never evicted or replaced: once a key resolves, every
// later lookup sees the same location.
type Cache struct {
	mu      sync.RWMutex
	entries map[domain.CacheKey]domain.ResolvedLocation
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[domain.CacheKey]domain.ResolvedLocation)}
}

// Get returns the cached location for key.
func (c *Cache) Get(key domain.CacheKey) (domain.ResolvedLocation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, ok := c.entries[key]
	return loc, ok
}

// Put stores value under key unless the key already resolved, and returns
// the location now held for key.
func (c *Cache) Put(key domain.CacheKey, value domain.ResolvedLocation) domain.ResolvedLocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing
	}
	c.entries[key] = value
	return value
}

// Len returns the number of cached locations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
