package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Defaults()
	if cfg.Embedding.Provider != want.Embedding.Provider || cfg.Tiering.HotThreshold != want.Tiering.HotThreshold {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestParseMergesOverDefaults(t *testing.T) {
	data := []byte(`
database:
  path: /var/lib/memtier/memories.db
embedding:
  provider: hash
  dimensions: 32
  cache_ttl: 1h
tiering:
  hot_threshold: 0.7
  schedule: "0 */15 * * * *"
graph:
  default_decay_rate: 0.05
search:
  default_limit: 20
default_importance: 40
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Database.Path != "/var/lib/memtier/memories.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Embedding.Provider != ProviderHash || cfg.Embedding.Dimensions != 32 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if cfg.Embedding.CacheTTL != time.Hour {
		t.Errorf("cache ttl = %v, want 1h", cfg.Embedding.CacheTTL)
	}
	if cfg.Embedding.MaxTextLength != Defaults().Embedding.MaxTextLength {
		t.Errorf("unset max text length should keep its default, got %d", cfg.Embedding.MaxTextLength)
	}
	if cfg.Tiering.HotThreshold != 0.7 || cfg.Tiering.WarmThreshold != 0.35 {
		t.Errorf("tiering thresholds = %v/%v", cfg.Tiering.HotThreshold, cfg.Tiering.WarmThreshold)
	}
	if cfg.Tiering.Schedule != "0 */15 * * * *" || cfg.Graph.DecaySchedule != "24h" {
		t.Errorf("schedules = %q/%q", cfg.Tiering.Schedule, cfg.Graph.DecaySchedule)
	}
	if cfg.Graph.DefaultDecayRate != 0.05 {
		t.Errorf("decay rate = %v", cfg.Graph.DefaultDecayRate)
	}

	ec := cfg.EngineConfig()
	if ec.Search.DefaultLimit != 20 || ec.DefaultImportance != 40 {
		t.Errorf("engine config = %+v", ec)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"provider":   "embedding:\n  provider: word2vec\n",
		"thresholds": "tiering:\n  hot_threshold: 0.2\n",
		"importance": "default_importance: 150\n",
		"yaml":       "tiering: [\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Defaults()
	cfg.Embedding.Provider = ProviderNone
	cfg.Server.TCP = "localhost:50052"

	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Embedding.Provider != ProviderNone || loaded.Server.TCP != "localhost:50052" {
		t.Errorf("round trip lost settings: %+v", loaded)
	}
}

func TestGetConfigPathEnvOverride(t *testing.T) {
	t.Setenv("MEMTIER_CONFIG_PATH", "/etc/memtier.yaml")
	if got := GetConfigPath(); got != "/etc/memtier.yaml" {
		t.Errorf("GetConfigPath = %q", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/memtier.db"); got != filepath.Join(home, "memtier.db") {
		t.Errorf("expandPath = %q", got)
	}
	if got := expandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("expandPath changed an absolute path: %q", got)
	}
}

func TestProviderEnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("OLLAMA_EMBED_MODEL", "")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_EMBED_DIMENSIONS", "512")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Defaults()
	cfg.Anthropic.APIKey = "file-key"

	host, model := LoadOllamaConfig(&cfg)
	if host != "http://gpu-box:11434" || model != "mxbai-embed-large" {
		t.Errorf("ollama = %q %q", host, model)
	}
	oa := LoadOpenAIConfig(&cfg)
	if oa.APIKey != "sk-env" || oa.Dimensions != 512 || oa.Model != "text-embedding-3-small" {
		t.Errorf("openai = %+v", oa)
	}
	if got := LoadAnthropicConfig(&cfg); got != "file-key" {
		t.Errorf("anthropic key = %q", got)
	}
}

func TestNewEmbedder(t *testing.T) {
	cfg := Defaults()
	cfg.Embedding.Provider = ProviderNone
	e, err := NewEmbedder(&cfg, nil, zerolog.Nop())
	if err != nil || e != nil {
		t.Fatalf("none provider = %v, %v", e, err)
	}

	cfg.Embedding.Provider = ProviderHash
	cfg.Embedding.Dimensions = 16
	e, err = NewEmbedder(&cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("hash provider: %v", err)
	}
	if e.Model() == "" {
		t.Error("expected a model name")
	}
}

func TestNewClassifierDisabled(t *testing.T) {
	cfg := Defaults()
	c, err := NewClassifier(&cfg, zerolog.Nop())
	if err != nil || c != nil {
		t.Fatalf("disabled classifier = %v, %v", c, err)
	}
}
