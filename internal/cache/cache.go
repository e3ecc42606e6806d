// Package cache keeps fetched search results and page text so repeated
// verifications of the same topic do not hit the network again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache is a byte store with per-entry expiry. A zero ttl uses the layer default.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Lookup outcomes reported to metrics
const (
	LayerMemory = "memory"
	LayerDisk   = "disk"
	LayerMiss   = "miss"
)

const keyPrefix = "ranger:v1:"

// Key builds a cache key from a namespace ("search", "page") and the request identity
func Key(namespace string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return keyPrefix + namespace + ":" + hex.EncodeToString(hash[:])
}
