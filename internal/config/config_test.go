package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
corpus:
  vectors_path: "/data/emb.npy"
  locators_path: "/data/urls.json"
liveness:
  timeout: 2s
  concurrency: 4
search:
  over_fetch_factor: 5
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Corpus.VectorsPath != "/data/emb.npy" || cfg.Corpus.LocatorsPath != "/data/urls.json" {
		t.Errorf("unexpected corpus config: %+v", cfg.Corpus)
	}
	if cfg.Liveness.Timeout != 2*time.Second {
		t.Errorf("liveness timeout: got %v", cfg.Liveness.Timeout)
	}
	if cfg.Liveness.Concurrency != 4 {
		t.Errorf("liveness concurrency: got %d", cfg.Liveness.Concurrency)
	}
	if cfg.Search.OverFetchFactor != 5 {
		t.Errorf("over_fetch_factor: got %d", cfg.Search.OverFetchFactor)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
corpus:
  vectors_path: "./data/dog_clip_embeddings.npy"
  locators_path: "./data/dog_image_urls.json"
storage:
  probe_log_path: "./data/probes.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantVectors := filepath.Join(dir, "data", "dog_clip_embeddings.npy")
	if cfg.Corpus.VectorsPath != wantVectors {
		t.Errorf("vectors_path = %s, want %s", cfg.Corpus.VectorsPath, wantVectors)
	}
	wantLocators := filepath.Join(dir, "data", "dog_image_urls.json")
	if cfg.Corpus.LocatorsPath != wantLocators {
		t.Errorf("locators_path = %s, want %s", cfg.Corpus.LocatorsPath, wantLocators)
	}
	wantProbeLog := filepath.Join(dir, "data", "probes.db")
	if cfg.Storage.ProbeLogPath != wantProbeLog {
		t.Errorf("probe_log_path = %s, want %s", cfg.Storage.ProbeLogPath, wantProbeLog)
	}
}

func TestLoad_probeLogStaysEmptyWhenUnset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
	if cfg.Storage.ProbeLogPath != "" {
		t.Errorf("probe_log_path should stay empty, got %q", cfg.Storage.ProbeLogPath)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxImagePixels != 25_000_000 {
		t.Errorf("default max image pixels: got %d", cfg.Server.MaxImagePixels)
	}
	if cfg.Server.RequestTimeout != 120*time.Second {
		t.Errorf("default request timeout: got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Search.DefaultTopK != 5 {
		t.Errorf("default top_k: got %d", cfg.Search.DefaultTopK)
	}
	if cfg.Search.OverFetchFactor != 3 {
		t.Errorf("default over_fetch_factor: got %d", cfg.Search.OverFetchFactor)
	}
	if cfg.Liveness.Timeout != 6*time.Second {
		t.Errorf("default liveness timeout: got %v", cfg.Liveness.Timeout)
	}
	if cfg.Liveness.Concurrency != 1 {
		t.Errorf("default liveness concurrency: got %d", cfg.Liveness.Concurrency)
	}
	if cfg.Liveness.UserAgent != "Mozilla/5.0" {
		t.Errorf("default user agent: got %q", cfg.Liveness.UserAgent)
	}
	if cfg.Embedding.Dimensions != 512 || cfg.Embedding.ImageSize != 224 {
		t.Errorf("embedding defaults: got %+v", cfg.Embedding)
	}
	if cfg.Embedding.AllowMock {
		t.Error("allow_mock should default to false")
	}
	if cfg.Corpus.Format != "npy" {
		t.Errorf("default corpus format: got %q", cfg.Corpus.Format)
	}
	if cfg.Recommend.Model != "gpt-4o" || cfg.Recommend.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("recommend defaults: got %+v", cfg.Recommend)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics path: got %q", cfg.Metrics.Path)
	}
}

func TestRecommendConfig_APIKey(t *testing.T) {
	t.Setenv("PAWMATCH_TEST_KEY", "sk-test")
	r := &RecommendConfig{APIKeyEnv: "PAWMATCH_TEST_KEY"}
	if got := r.APIKey(); got != "sk-test" {
		t.Errorf("APIKey() = %q, want sk-test", got)
	}
	empty := &RecommendConfig{}
	if got := empty.APIKey(); got != "" {
		t.Errorf("APIKey() with no env name = %q, want empty", got)
	}
}
