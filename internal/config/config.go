// Package config provides configuration loading and structs for the pawmatch server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Liveness  LivenessConfig  `yaml:"liveness"`
	Recommend RecommendConfig `yaml:"recommend"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadBytes bounds the multipart body accepted by the upload endpoints.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	// MaxImagePixels bounds the declared width*height of an uploaded image before it is decoded.
	MaxImagePixels int `yaml:"max_image_pixels"`
	// RequestTimeout bounds a whole request, including every liveness probe it runs.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// CorpusConfig points at the precomputed reference corpus.
type CorpusConfig struct {
	VectorsPath  string `yaml:"vectors_path"`
	LocatorsPath string `yaml:"locators_path"`
	// Format is "npy" (default) or "raw" (little-endian float32 rows of embedding.dimensions).
	Format string `yaml:"format"`
	// Watch logs a warning when the corpus files change on disk.
	Watch bool `yaml:"watch"`
}

// EmbeddingConfig holds ONNX image embedder settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	ImageSize  int    `yaml:"image_size"`
	InputName  string `yaml:"input_name"`
	OutputName string `yaml:"output_name"`
	CacheSize  int    `yaml:"cache_size"`
	// AllowMock starts with the deterministic mock embedder when the ONNX model cannot be loaded.
	AllowMock bool `yaml:"allow_mock"`
}

// SearchConfig holds ranking settings.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
	// OverFetchFactor multiplies top_k to size the ranked window handed to the liveness filter.
	OverFetchFactor int `yaml:"over_fetch_factor"`
}

// LivenessConfig holds reachability probe settings.
type LivenessConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	Concurrency  int           `yaml:"concurrency"`
	UserAgent    string        `yaml:"user_agent"`
	MaxRedirects int           `yaml:"max_redirects"`
}

// RecommendConfig holds the chat completion backend used for breed recommendations.
type RecommendConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	Timeout      time.Duration `yaml:"timeout"`
	SystemPrompt string        `yaml:"system_prompt"`
}

// APIKey returns the API key from the configured environment variable.
func (r *RecommendConfig) APIKey() string {
	if r.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(r.APIKeyEnv)
}

// StorageConfig holds paths for local state.
type StorageConfig struct {
	ProbeLogPath string `yaml:"probe_log_path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Corpus.VectorsPath = expandPath(cfg.Corpus.VectorsPath, configDir)
	cfg.Corpus.LocatorsPath = expandPath(cfg.Corpus.LocatorsPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Storage.ProbeLogPath != "" {
		cfg.Storage.ProbeLogPath = expandPath(cfg.Storage.ProbeLogPath, configDir)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
