package config

import (
	"os"
	"strconv"

	"github.com/aschepis/backscratcher/memtier/embedding/openai"
)

// OpenAIConfig holds OpenAI (or compatible) embedding settings.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"`
	Model        string `yaml:"model,omitempty"`
	Organization string `yaml:"organization,omitempty"`
	// Dimensions asks the model for shorter vectors; zero keeps its default.
	Dimensions int `yaml:"dimensions,omitempty"`
}

// LoadOpenAIConfig resolves OpenAI settings; OPENAI_* variables win over the
// file.
func LoadOpenAIConfig(cfg *Config) OpenAIConfig {
	var out OpenAIConfig
	if cfg != nil {
		out = cfg.OpenAI
	}
	out.APIKey = envOr("OPENAI_API_KEY", out.APIKey)
	out.BaseURL = envOr("OPENAI_BASE_URL", out.BaseURL)
	out.Model = envOr("OPENAI_EMBED_MODEL", out.Model)
	out.Organization = envOr("OPENAI_ORG_ID", out.Organization)
	if d, err := strconv.Atoi(os.Getenv("OPENAI_EMBED_DIMENSIONS")); err == nil && d > 0 {
		out.Dimensions = d
	}
	return out
}

// NewOpenAIEmbedder builds the OpenAI provider.
func NewOpenAIEmbedder(cfg *Config) (*openai.Embedder, error) {
	c := LoadOpenAIConfig(cfg)
	return openai.NewEmbedder(c.APIKey, c.BaseURL, c.Model, c.Organization, c.Dimensions)
}
