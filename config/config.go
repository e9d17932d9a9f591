package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/aschepis/backscratcher/memtier/embedding"
	"github.com/aschepis/backscratcher/memtier/engine"
	"github.com/aschepis/backscratcher/memtier/graph"
	"github.com/aschepis/backscratcher/memtier/search"
	"github.com/aschepis/backscratcher/memtier/tiering"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
	ProviderNone   = "none"
)

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"` // SQLite file, or ":memory:"
	// MigrationsPath loads migrations from disk instead of the embedded set.
	MigrationsPath string `yaml:"migrations_path,omitempty"`
}

// LogConfig configures the process logger. LOG_LEVEL sets the level.
type LogConfig struct {
	File   string `yaml:"file,omitempty"`   // Log file path; empty logs to stdout
	Pretty bool   `yaml:"pretty,omitempty"` // Console output, only without File
}

// ServerConfig configures the memtier daemon's health endpoint.
type ServerConfig struct {
	Socket string `yaml:"socket,omitempty"` // Unix socket path (default: /tmp/memtier.sock)
	TCP    string `yaml:"tcp,omitempty"`    // TCP address (e.g., localhost:50052)
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider         string `yaml:"provider,omitempty"` // ollama, openai, hash or none
	Dimensions       int    `yaml:"dimensions,omitempty"`
	embedding.Config `yaml:",inline"`
	Retry            embedding.RetryConfig `yaml:"retry,omitempty"`
}

// ClassifierConfig enables relabelling discovered relationships with Claude.
type ClassifierConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	Model     string `yaml:"model,omitempty"`
	MaxTokens int64  `yaml:"max_tokens,omitempty"`
}

// TieringConfig is the tier engine configuration plus its schedule.
type TieringConfig struct {
	tiering.Config `yaml:",inline"`
	// Schedule runs optimization, e.g. "1h" or "0 */30 * * * *". Empty
	// disables it.
	Schedule string `yaml:"schedule,omitempty"`
}

// GraphConfig is the graph engine configuration plus the decay schedule.
type GraphConfig struct {
	graph.Config  `yaml:",inline"`
	DecaySchedule string `yaml:"decay_schedule,omitempty"`
}

// Config is the memtier configuration file.
type Config struct {
	Database   DatabaseConfig   `yaml:"database,omitempty"`
	Log        LogConfig        `yaml:"log,omitempty"`
	Server     ServerConfig     `yaml:"server,omitempty"`
	Embedding  EmbeddingConfig  `yaml:"embedding,omitempty"`
	Ollama     OllamaConfig     `yaml:"ollama,omitempty"`
	OpenAI     OpenAIConfig     `yaml:"openai,omitempty"`
	Anthropic  AnthropicConfig  `yaml:"anthropic,omitempty"`
	Classifier ClassifierConfig `yaml:"classifier,omitempty"`
	Tiering    TieringConfig    `yaml:"tiering,omitempty"`
	Graph      GraphConfig      `yaml:"graph,omitempty"`
	Search     search.Config    `yaml:"search,omitempty"`
	// DefaultImportance applies to memories created without one.
	DefaultImportance int `yaml:"default_importance,omitempty"`
}

// Defaults returns the configuration used when no file overrides it.
func Defaults() Config {
	engineDefaults := engine.DefaultConfig()
	cfg := Config{
		Database: DatabaseConfig{Path: "memtier.db"},
		Server:   ServerConfig{Socket: "/tmp/memtier.sock"},
		Embedding: EmbeddingConfig{
			Provider: ProviderOllama,
			Config:   embedding.DefaultConfig(),
			Retry:    embedding.DefaultRetryConfig(),
		},
		Ollama: OllamaConfig{
			Host:  "http://localhost:11434",
			Model: "mxbai-embed-large",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "text-embedding-3-small",
		},
		Classifier: ClassifierConfig{
			Model:     "claude-3-5-haiku-latest",
			MaxTokens: 64,
		},
		Tiering:           TieringConfig{Config: engineDefaults.Tiering, Schedule: "1h"},
		Graph:             GraphConfig{Config: engineDefaults.Graph, DecaySchedule: "24h"},
		Search:            engineDefaults.Search,
		DefaultImportance: engineDefaults.DefaultImportance,
	}
	return cfg
}

// GetConfigPath returns the config file path.
// Can be overridden via MEMTIER_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("MEMTIER_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.memtier/config.yaml"
	}
	return filepath.Join(homeDir, ".memtier", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load reads the config file at path and merges it over Defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	defaults := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err != nil {
		return &defaults, nil
	}
	data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
	}
	return Parse(data)
}

// Parse merges YAML over Defaults.
func Parse(data []byte) (*Config, error) {
	defaults := Defaults()

	var fileConfig Config
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := mergo.Merge(&defaults, fileConfig, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}
	if err := defaults.Validate(); err != nil {
		return nil, err
	}
	return &defaults, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the provider choice and every engine section.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderHash, ProviderNone:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if err := c.Embedding.Config.Validate(); err != nil {
		return err
	}
	if c.DefaultImportance < 0 || c.DefaultImportance > 100 {
		return fmt.Errorf("default importance %d outside [0,100]", c.DefaultImportance)
	}
	return c.EngineConfig().Validate()
}

// EngineConfig converts the file sections into the engine's configuration.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Tiering:           c.Tiering.Config,
		Search:            c.Search,
		Graph:             c.Graph.Config,
		DefaultImportance: c.DefaultImportance,
	}
}
