package engine

import (
	"github.com/aschepis/backscratcher/memtier/graph"
	"github.com/aschepis/backscratcher/memtier/search"
	"github.com/aschepis/backscratcher/memtier/tiering"
)

// Config bundles the configuration of each sub-engine.
type Config struct {
	Tiering tiering.Config
	Search  search.Config
	Graph   graph.Config
	// DefaultImportance is used when a create request leaves importance
	// unset.
	DefaultImportance int
}

// DefaultConfig returns defaults for every sub-engine.
func DefaultConfig() Config {
	return Config{
		Tiering:           tiering.DefaultConfig(),
		Search:            search.DefaultConfig(),
		Graph:             graph.DefaultConfig(),
		DefaultImportance: 50,
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Tiering.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	return c.Graph.Validate()
}
