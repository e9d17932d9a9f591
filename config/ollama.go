package config

import (
	"os"

	"github.com/aschepis/backscratcher/memtier/embedding/ollama"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaConfig selects the Ollama server and embedding model.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"`
	Model string `yaml:"model,omitempty"`
}

// LoadOllamaConfig resolves the Ollama host and model. OLLAMA_HOST and
// OLLAMA_EMBED_MODEL win over the file.
func LoadOllamaConfig(cfg *Config) (host, model string) {
	if cfg != nil {
		host, model = cfg.Ollama.Host, cfg.Ollama.Model
	}
	host = envOr("OLLAMA_HOST", host)
	model = envOr("OLLAMA_EMBED_MODEL", model)
	if host == "" {
		host = defaultOllamaHost
	}
	if model == "" {
		model = string(ollama.ModelMXBAI)
	}
	return host, model
}

// NewOllamaEmbedder builds the Ollama provider.
func NewOllamaEmbedder(cfg *Config) (*ollama.Embedder, error) {
	host, model := LoadOllamaConfig(cfg)
	return ollama.NewEmbedder(host, ollama.Model(model))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
