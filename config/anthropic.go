package config

import (
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/memtier/classifier/anthropic"
	"github.com/aschepis/backscratcher/memtier/graph"
)

// AnthropicConfig holds the Anthropic API credentials.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
}

// LoadAnthropicConfig returns the API key, preferring ANTHROPIC_API_KEY.
func LoadAnthropicConfig(cfg *Config) (apiKey string) {
	if cfg != nil {
		apiKey = cfg.Anthropic.APIKey
	}
	return envOr("ANTHROPIC_API_KEY", apiKey)
}

// NewClassifier creates the relationship classifier, or returns nil when it
// is disabled.
func NewClassifier(cfg *Config, logger zerolog.Logger) (graph.Classifier, error) {
	if cfg == nil || !cfg.Classifier.Enabled {
		return nil, nil
	}
	apiKey := LoadAnthropicConfig(cfg)
	c, err := anthropic.NewClassifier(apiKey, cfg.Classifier.Model, cfg.Classifier.MaxTokens, logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}
