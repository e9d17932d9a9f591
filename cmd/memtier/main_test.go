package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "database:\n  path: " + filepath.Join(dir, "memtier.db") + "\nembedding:\n  provider: hash\n  dimensions: 64\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("memtier %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	out := execute(t, "version")
	if !strings.HasPrefix(out, "memtier dev") {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestAddThenSearchLocally(t *testing.T) {
	cfg := writeTestConfig(t)

	var created struct {
		ID      string `json:"id"`
		OwnerID string `json:"owner_id"`
		Tier    string `json:"tier"`
	}
	out := execute(t, "--config", cfg, "--caller", "alice", "add", "--tag", "ops", "the", "deploy", "pipeline", "failed")
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("decode add output %q: %v", out, err)
	}
	if created.ID == "" || created.OwnerID != "alice" {
		t.Fatalf("unexpected created memory %+v", created)
	}

	var page struct {
		Total int `json:"total"`
	}
	out = execute(t, "--config", cfg, "--caller", "alice", "search", "--mode", "lexical", "deploy")
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatalf("decode search output %q: %v", out, err)
	}
	if page.Total != 1 {
		t.Errorf("expected one hit, got %d", page.Total)
	}

	out = execute(t, "--config", cfg, "optimize")
	if !strings.Contains(out, "\"processed\"") {
		t.Errorf("optimize output missing result: %s", out)
	}
}

func TestSearchRejectsUnknownMode(t *testing.T) {
	cfg := writeTestConfig(t)
	rootCmd.SetArgs([]string{"--config", cfg, "search", "--mode", "fuzzy", "anything"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for unknown search mode")
	}
	searchMode = "lexical"
}
