package config

import "time"

// DefaultSystemPrompt asks the model for a breed recommendation with reasons and caveats.
const DefaultSystemPrompt = "You are a dog expert. Consider the user's lifestyle together with the information in the photo, " +
	"recommend suitable dog breeds, and briefly explain the reasons and points of caution."

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Server.MaxImagePixels == 0 {
		cfg.Server.MaxImagePixels = 25_000_000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120 * time.Second
	}
	if cfg.Corpus.VectorsPath == "" {
		cfg.Corpus.VectorsPath = "/usr/local/var/pawmatch/data/dog_clip_embeddings.npy"
	}
	if cfg.Corpus.LocatorsPath == "" {
		cfg.Corpus.LocatorsPath = "/usr/local/var/pawmatch/data/dog_image_urls.json"
	}
	if cfg.Corpus.Format == "" {
		cfg.Corpus.Format = "npy"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/pawmatch/data/models/clip-vit-b32-visual.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 224
	}
	if cfg.Embedding.InputName == "" {
		cfg.Embedding.InputName = "pixel_values"
	}
	if cfg.Embedding.OutputName == "" {
		cfg.Embedding.OutputName = "image_embeds"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 50
	}
	if cfg.Search.OverFetchFactor == 0 {
		cfg.Search.OverFetchFactor = 3
	}
	if cfg.Liveness.Timeout == 0 {
		cfg.Liveness.Timeout = 6 * time.Second
	}
	if cfg.Liveness.Concurrency == 0 {
		cfg.Liveness.Concurrency = 1
	}
	if cfg.Liveness.UserAgent == "" {
		cfg.Liveness.UserAgent = "Mozilla/5.0"
	}
	if cfg.Liveness.MaxRedirects == 0 {
		cfg.Liveness.MaxRedirects = 10
	}
	if cfg.Recommend.BaseURL == "" {
		cfg.Recommend.BaseURL = "https://api.openai.com"
	}
	if cfg.Recommend.Model == "" {
		cfg.Recommend.Model = "gpt-4o"
	}
	if cfg.Recommend.APIKeyEnv == "" {
		cfg.Recommend.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Recommend.Timeout == 0 {
		cfg.Recommend.Timeout = 60 * time.Second
	}
	if cfg.Recommend.SystemPrompt == "" {
		cfg.Recommend.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}
