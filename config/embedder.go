package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/memtier/embedding"
	"github.com/aschepis/backscratcher/memtier/embedding/hash"
	"github.com/aschepis/backscratcher/memtier/memory"
)

// NewEmbedder builds the configured provider behind a caching Generator.
// It returns nil, nil for the "none" provider.
func NewEmbedder(cfg *Config, cache *embedding.Cache, logger zerolog.Logger) (memory.Embedder, error) {
	var provider memory.Embedder
	switch cfg.Embedding.Provider {
	case ProviderNone:
		return nil, nil
	case ProviderHash:
		provider = hash.NewEmbedder(cfg.Embedding.Dimensions)
	case ProviderOllama:
		e, err := NewOllamaEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		provider = embedding.WithRetry(e, cfg.Embedding.Retry, logger)
	case ProviderOpenAI:
		e, err := NewOpenAIEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		provider = embedding.WithRetry(e, cfg.Embedding.Retry, logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	return embedding.NewGenerator(provider, cache, cfg.Embedding.Config, logger), nil
}
