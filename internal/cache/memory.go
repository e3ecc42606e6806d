package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is the process-local layer. Values are stored as strings, so a
// caller mutating its slice after Set or Get never changes the cached entry.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates a memory layer; expired entries are evicted every cleanup interval
func NewMemoryCache(defaultTTL, cleanup time.Duration) *MemoryCache {
	return &MemoryCache{items: gocache.New(defaultTTL, cleanup)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	s, ok := v.(string)
	if !ok {
		c.items.Delete(key)
		return nil, false
	}
	return []byte(s), true
}

func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.items.Set(key, string(value), ttl)
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.items.Delete(key)
	return nil
}

func (c *MemoryCache) Clear() error {
	c.items.Flush()
	return nil
}

// Len counts entries, including expired ones the janitor has not evicted yet
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}
