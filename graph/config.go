package graph

import (
	"fmt"
	"time"
)

// Config tunes the relationship graph.
type Config struct {
	// DecayInterval is the unit DecayRate is expressed in.
	DecayInterval    time.Duration `yaml:"decay_interval,omitempty"`
	DefaultDecayRate float64       `yaml:"default_decay_rate,omitempty"`
	// PathHorizon bounds FindPath in hops.
	PathHorizon int `yaml:"path_horizon,omitempty"`
	// MaxDepth caps RelatedOptions.MaxDepth.
	MaxDepth         int     `yaml:"max_depth,omitempty"`
	ClusterThreshold float64 `yaml:"cluster_threshold,omitempty"`
	// DiscoveryNeighbourhood bounds how many memories discovery compares.
	DiscoveryNeighbourhood int     `yaml:"discovery_neighbourhood,omitempty"`
	DiscoveryMinStrength   float64 `yaml:"discovery_min_strength,omitempty"`
	DiscoveryLimit         int     `yaml:"discovery_limit,omitempty"`
	// SimilarThreshold is the similarity above which a discovered link is
	// typed "similar".
	SimilarThreshold float64 `yaml:"similar_threshold,omitempty"`
	// TemporalWindow pairs memories created this close together as
	// "temporal" when nothing stronger applies.
	TemporalWindow time.Duration `yaml:"temporal_window,omitempty"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DecayInterval:          24 * time.Hour,
		DefaultDecayRate:       0.01,
		PathHorizon:            6,
		MaxDepth:               5,
		ClusterThreshold:       0.3,
		DiscoveryNeighbourhood: 200,
		DiscoveryMinStrength:   0.5,
		DiscoveryLimit:         10,
		SimilarThreshold:       0.8,
		TemporalWindow:         time.Hour,
	}
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if c.DecayInterval <= 0 {
		return fmt.Errorf("graph: decay interval must be positive")
	}
	if c.DefaultDecayRate < 0 {
		return fmt.Errorf("graph: decay rate must not be negative")
	}
	if c.PathHorizon <= 0 || c.MaxDepth <= 0 {
		return fmt.Errorf("graph: path horizon and max depth must be positive")
	}
	if c.ClusterThreshold < 0 || c.ClusterThreshold > 1 || c.DiscoveryMinStrength < 0 || c.DiscoveryMinStrength > 1 {
		return fmt.Errorf("graph: thresholds must be within [0,1]")
	}
	if c.DiscoveryNeighbourhood <= 0 || c.DiscoveryLimit <= 0 {
		return fmt.Errorf("graph: discovery bounds must be positive")
	}
	return nil
}
