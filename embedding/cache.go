package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cache is a bounded, TTL-expiring map from cache key to vector. Cost is
// the vector length, so MaxCost bounds memory rather than entry count.
type Cache struct {
	store *ristretto.Cache
	ttl   time.Duration
}

// NewCache creates a cache from cfg.
func NewCache(cfg Config) (*Cache, error) {
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        cfg.CacheNumCounters,
		MaxCost:            cfg.CacheMaxCost,
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true, // cost is vector dimensions
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cache{store: store, ttl: cfg.CacheTTL}, nil
}

// Key derives the cache key for text under model.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// ContentHash fingerprints memory content for persisted embeddings.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns a copy of the cached vector.
func (c *Cache) Get(key string) ([]float32, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	if !ok {
		return nil, false
	}
	return append([]float32(nil), vec...), true
}

// Set stores vec. Admission is asynchronous; call Wait to observe it.
func (c *Cache) Set(key string, vec []float32) bool {
	cost := int64(len(vec))
	if cost == 0 {
		cost = 1
	}
	stored := append([]float32(nil), vec...)
	if c.ttl > 0 {
		return c.store.SetWithTTL(key, stored, cost, c.ttl)
	}
	return c.store.Set(key, stored, cost)
}

// Wait blocks until pending sets are applied.
func (c *Cache) Wait() { c.store.Wait() }

// Delete evicts key.
func (c *Cache) Delete(key string) { c.store.Del(key) }

// Clear empties the cache.
func (c *Cache) Clear() { c.store.Clear() }

// Close releases the cache's goroutines.
func (c *Cache) Close() { c.store.Close() }

// Stats reports hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	if m := c.store.Metrics; m != nil {
		return m.Hits(), m.Misses()
	}
	return 0, 0
}

// Cost estimates the total cost of resident entries, which is the number of
// cached float32 values.
func (c *Cache) Cost() int64 {
	m := c.store.Metrics
	if m == nil {
		return 0
	}
	return max(0, int64(m.CostAdded())-int64(m.CostEvicted()))
}
