package cache

import (
	"errors"
	"time"

	"github.com/ppiankov/ranger/internal/metrics"
)

const memoryCleanup = 10 * time.Minute

// LayeredCache puts the memory layer in front of the disk layer and reports which
// layer answered each lookup
type LayeredCache struct {
	memory  *MemoryCache
	disk    *DiskCache // nil keeps entries in memory only
	metrics *metrics.Metrics
}

// NewLayeredCache creates the fetch cache. An empty diskDir disables the disk layer.
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration, m *metrics.Metrics) *LayeredCache {
	c := &LayeredCache{
		memory:  NewMemoryCache(memoryTTL, memoryCleanup),
		metrics: m,
	}
	if diskDir != "" {
		c.disk = NewDiskCache(diskDir, diskTTL)
	}
	return c
}

// Get checks memory, then disk. Disk hits are promoted with the memory default TTL.
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, ok := c.memory.Get(key); ok {
		c.metrics.ObserveCacheLookup(LayerMemory)
		return val, true
	}
	if c.disk != nil {
		if val, ok := c.disk.Get(key); ok {
			_ = c.memory.Set(key, val, 0)
			c.metrics.ObserveCacheLookup(LayerDisk)
			return val, true
		}
	}
	c.metrics.ObserveCacheLookup(LayerMiss)
	return nil, false
}

func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}
	if c.disk == nil {
		return nil
	}
	return c.disk.Set(key, value, ttl)
}

// Delete removes key from both layers. A key missing from disk is not an error.
func (c *LayeredCache) Delete(key string) error {
	_ = c.memory.Delete(key)
	if c.disk == nil {
		return nil
	}
	if err := c.disk.Delete(key); err != nil && !errors.Is(err, errNotCached) {
		return err
	}
	return nil
}

func (c *LayeredCache) Clear() error {
	_ = c.memory.Clear()
	if c.disk == nil {
		return nil
	}
	return c.disk.Clear()
}

// Prune drops expired disk entries; the memory layer evicts on its own
func (c *LayeredCache) Prune() (int, error) {
	if c.disk == nil {
		return 0, nil
	}
	return c.disk.Prune()
}
