package embedding

import (
	"fmt"
	"time"
)

// Config controls preprocessing and caching of embeddings.
type Config struct {
	// MaxTextLength truncates input text to this many runes.
	MaxTextLength int           `yaml:"max_text_length,omitempty"`
	CacheTTL      time.Duration `yaml:"cache_ttl,omitempty"`
	// CacheMaxCost bounds the cache by total vector dimensions held.
	CacheMaxCost int64 `yaml:"cache_max_cost,omitempty"`
	// CacheNumCounters sizes ristretto's admission counters, about 10x the
	// expected number of entries.
	CacheNumCounters int64 `yaml:"cache_num_counters,omitempty"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxTextLength:    8192,
		CacheTTL:         24 * time.Hour,
		CacheMaxCost:     1 << 24,
		CacheNumCounters: 100_000,
	}
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if c.MaxTextLength <= 0 {
		return fmt.Errorf("embedding: max text length must be positive, got %d", c.MaxTextLength)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("embedding: cache ttl must not be negative")
	}
	if c.CacheMaxCost <= 0 || c.CacheNumCounters <= 0 {
		return fmt.Errorf("embedding: cache max cost and counters must be positive")
	}
	return nil
}
