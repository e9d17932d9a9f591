package search

import "fmt"

// Config holds search defaults and bounds.
type Config struct {
	DefaultLimit     int     `yaml:"default_limit,omitempty"`
	MaxLimit         int     `yaml:"max_limit,omitempty"`
	DefaultThreshold float64 `yaml:"default_threshold,omitempty"`
	// CandidateCap bounds how many memories one query scores.
	CandidateCap int `yaml:"candidate_cap,omitempty"`
	// EmbedWorkers bounds concurrent provider calls when filling in
	// missing memory embeddings.
	EmbedWorkers int `yaml:"embed_workers,omitempty"`
	// SemanticWeight is the share of a hybrid score taken from similarity.
	SemanticWeight float64 `yaml:"semantic_weight,omitempty"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:     10,
		MaxLimit:         100,
		DefaultThreshold: 0.5,
		CandidateCap:     1000,
		EmbedWorkers:     4,
		SemanticWeight:   0.6,
	}
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if c.DefaultLimit <= 0 || c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("search: need 0 < default limit <= max limit, got %d/%d", c.DefaultLimit, c.MaxLimit)
	}
	if c.DefaultThreshold < -1 || c.DefaultThreshold > 1 {
		return fmt.Errorf("search: threshold must be within [-1,1], got %f", c.DefaultThreshold)
	}
	if c.CandidateCap <= 0 || c.EmbedWorkers <= 0 {
		return fmt.Errorf("search: candidate cap and embed workers must be positive")
	}
	if c.SemanticWeight < 0 || c.SemanticWeight > 1 {
		return fmt.Errorf("search: semantic weight must be within [0,1], got %f", c.SemanticWeight)
	}
	return nil
}
