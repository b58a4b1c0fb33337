// Package main is the pawmatch CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/pawmatch/internal/cli"
	"github.com/hyperjump/pawmatch/internal/config"
	"github.com/hyperjump/pawmatch/internal/corpus"
	"github.com/hyperjump/pawmatch/internal/embedding"
	"github.com/hyperjump/pawmatch/internal/keyword"
	"github.com/hyperjump/pawmatch/internal/liveness"
	"github.com/hyperjump/pawmatch/internal/metrics"
	"github.com/hyperjump/pawmatch/internal/models"
	"github.com/hyperjump/pawmatch/internal/recommend"
	"github.com/hyperjump/pawmatch/internal/search"
	"github.com/hyperjump/pawmatch/internal/server"
	"github.com/hyperjump/pawmatch/internal/storage"
	"github.com/hyperjump/pawmatch/internal/watcher"
	"github.com/hyperjump/pawmatch/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/pawmatch/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory takes precedence so "pawmatch server" works from a checkout.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "probe":
		runProbe()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("pawmatch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (per-probe outcomes, corpus watch events)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Corpus.Watch {
		w, err := watcher.NewWatcher(
			[]string{cfg.Corpus.VectorsPath, cfg.Corpus.LocatorsPath},
			func(path string, op fsnotify.Op) {
				logger.Warn("corpus file changed; restart required",
					zap.String("path", path), zap.String("op", op.String()))
			},
			watcher.WithLogger(logger),
		)
		if err != nil {
			logger.Fatal("Failed to create corpus watcher", zap.Error(err))
		}
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start corpus watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(components.Engine, components.Corpus, cfg, logger, components.serverOptions()...)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: pawmatch search [flags] <image>\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results are the most similar reference photos whose URLs are still reachable, most similar first.
Fewer than --top-k results means the rest of the ranked window was unreachable.

Examples:
  pawmatch search dog.jpg
  pawmatch search --top-k 10 --output json dog.jpg
  pawmatch search --server "" dog.jpg     # search in-process without a running server
`)
}

// searchArgsReorder moves any flags that appear after the image path to the front
// so that flag.Parse sees them; the flag package stops at the first positional argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search in-process)")
	topK := fs.Int("top-k", 0, "number of results (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
		os.Exit(1)
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = searchViaHTTP(http.DefaultClient, *serverURL, filepath.Base(fs.Arg(0)), data, *topK)
	} else {
		response, err = searchInProcess(*configPath, data, *topK)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchInProcess(configPath string, data []byte, topK int) (*models.SearchResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	img, _, err := embedding.DecodeImage(data, cfg.Server.MaxImagePixels)
	if err != nil {
		return nil, err
	}
	q := &models.SearchQuery{TopK: topK}
	if err := q.Validate(cfg.Search.DefaultTopK, cfg.Search.MaxTopK); err != nil {
		return nil, err
	}
	return components.Engine.Search(context.Background(), img, q.TopK)
}

// newUploadBody builds the multipart body accepted by the search endpoints.
func newUploadBody(filename string, image []byte, fields map[string]string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(image); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

func searchViaHTTP(client *http.Client, serverURL, filename string, image []byte, topK int) (*models.SearchResponse, error) {
	fields := map[string]string{}
	if topK > 0 {
		fields["top_k"] = strconv.Itoa(topK)
	}
	body, contentType, err := newUploadBody(filename, image, fields)
	if err != nil {
		return nil, err
	}
	resp, err := client.Post(strings.TrimRight(serverURL, "/")+"/api/v1/search", contentType, body)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runProbe() {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	timeout := fs.Duration("timeout", liveness.DefaultTimeout, "per-request timeout")
	userAgent := fs.String("user-agent", "Mozilla/5.0", "User-Agent header sent with probes")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() == 0 {
		fmt.Println("Usage: pawmatch probe [flags] <url>...")
		os.Exit(1)
	}
	prober := liveness.NewProber(liveness.WithTimeout(*timeout), liveness.WithUserAgent(*userAgent))
	if dead := probeAll(context.Background(), prober, fs.Args(), os.Stdout); dead > 0 {
		os.Exit(1)
	}
}

// probeAll probes each locator in order, writes one line per outcome and returns the dead count.
func probeAll(ctx context.Context, checker liveness.Checker, locators []string, w io.Writer) int {
	dead := 0
	for _, loc := range locators {
		res := checker.Probe(ctx, loc)
		cli.WriteProbe(w, &models.ProbeRecord{
			Locator:  loc,
			Alive:    res.Alive,
			Status:   res.Status,
			Method:   res.Method,
			Reason:   res.Reason,
			Duration: res.Duration,
		})
		if !res.Alive {
			dead++
		}
	}
	return dead
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	status, err := statusViaHTTP(http.DefaultClient, *serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusViaHTTP(client *http.Client, serverURL string) (*models.StatusResponse, error) {
	resp, err := client.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var status models.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &status, nil
}

// Components holds initialized services.
type Components struct {
	Corpus      *corpus.Corpus
	Embedder    embedding.Embedder
	Engine      *search.Engine
	ProbeLog    storage.ProbeLog
	Locators    *keyword.LocatorIndex
	Recommender *recommend.Client
	Metrics     *metrics.Metrics
}

// Close releases the embedder, probe log and locator index.
func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.ProbeLog != nil {
		_ = c.ProbeLog.Close()
	}
	if c.Locators != nil {
		_ = c.Locators.Close()
	}
}

func (c *Components) serverOptions() []server.ServerOption {
	var opts []server.ServerOption
	if c.Recommender != nil {
		opts = append(opts, server.WithRecommender(c.Recommender))
	}
	if c.Locators != nil {
		opts = append(opts, server.WithLocatorLookup(c.Locators))
	}
	if c.ProbeLog != nil {
		opts = append(opts, server.WithProbeLog(c.ProbeLog))
	}
	if c.Metrics != nil {
		opts = append(opts, server.WithMetrics(c.Metrics))
	}
	return opts
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (comps *Components, err error) {
	comps = &Components{}
	defer func() {
		if err != nil {
			comps.Close()
			comps = nil
		}
	}()

	c, err := corpus.Load(cfg.Corpus.VectorsPath, cfg.Corpus.LocatorsPath, corpus.LoadOptions{
		Format:     cfg.Corpus.Format,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return comps, fmt.Errorf("failed to load corpus: %w", err)
	}
	comps.Corpus = c
	logger.Info("corpus loaded",
		zap.Int("entries", c.Len()),
		zap.Int("dimensions", c.Dimensions()),
		zap.String("vectors", cfg.Corpus.VectorsPath))

	if cfg.Metrics.Enabled {
		comps.Metrics = metrics.New("pawmatch", true)
		comps.Metrics.SetCorpusSize(c.Len())
	}

	onnxEmbedder, err := embedding.NewONNXEmbedder(embedding.ONNXOptions{
		ModelPath:  cfg.Embedding.ModelPath,
		Dimensions: c.Dimensions(),
		ImageSize:  cfg.Embedding.ImageSize,
		InputName:  cfg.Embedding.InputName,
		OutputName: cfg.Embedding.OutputName,
		CacheSize:  cfg.Embedding.CacheSize,
	})
	if err != nil {
		if !cfg.Embedding.AllowMock {
			return comps, fmt.Errorf("failed to load embedding model (set embedding.allow_mock to use the mock embedder): %w", err)
		}
		logger.Warn("ONNX embedder unavailable, falling back to mock embedder",
			zap.String("model_path", cfg.Embedding.ModelPath), zap.Error(err))
		comps.Embedder = embedding.NewMockEmbedder(c.Dimensions())
	} else {
		comps.Embedder = onnxEmbedder
	}

	ranker, err := search.NewRanker(c, cfg.Search.OverFetchFactor)
	if err != nil {
		return comps, fmt.Errorf("failed to initialize ranker: %w", err)
	}

	if cfg.Storage.ProbeLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.ProbeLogPath), 0o755); err != nil {
			return comps, fmt.Errorf("failed to create probe log directory: %w", err)
		}
		probeLog, err := storage.NewSQLiteProbeLog(cfg.Storage.ProbeLogPath)
		if err != nil {
			return comps, fmt.Errorf("failed to open probe log: %w", err)
		}
		comps.ProbeLog = probeLog
	}

	prober := liveness.NewProber(
		liveness.WithTimeout(cfg.Liveness.Timeout),
		liveness.WithUserAgent(cfg.Liveness.UserAgent),
		liveness.WithMaxRedirects(cfg.Liveness.MaxRedirects),
	)
	filterOpts := []liveness.FilterOption{
		liveness.WithLogger(logger),
		liveness.WithConcurrency(cfg.Liveness.Concurrency),
		liveness.WithMetrics(comps.Metrics),
	}
	if comps.ProbeLog != nil {
		filterOpts = append(filterOpts, liveness.WithRecorder(comps.ProbeLog))
	}
	filter := liveness.NewFilter(prober, filterOpts...)

	comps.Engine = search.NewEngine(comps.Embedder, ranker, filter,
		search.WithLogger(logger),
		search.WithMetrics(comps.Metrics),
	)

	if cfg.Recommend.Enabled {
		rec, err := recommend.New(recommend.Options{
			BaseURL:      cfg.Recommend.BaseURL,
			APIKey:       cfg.Recommend.APIKey(),
			Model:        cfg.Recommend.Model,
			SystemPrompt: cfg.Recommend.SystemPrompt,
			Timeout:      cfg.Recommend.Timeout,
		})
		if err != nil {
			return comps, fmt.Errorf("failed to initialize recommender (set %s): %w", cfg.Recommend.APIKeyEnv, err)
		}
		comps.Recommender = rec
		logger.Info("recommender enabled", zap.String("model", rec.Model()))
	}

	locators, err := keyword.NewLocatorIndex()
	if err != nil {
		return comps, fmt.Errorf("failed to initialize locator index: %w", err)
	}
	comps.Locators = locators
	if err := locators.IndexLocators(context.Background(), c.Locators()); err != nil {
		return comps, fmt.Errorf("failed to index locators: %w", err)
	}

	return comps, nil
}

func printUsage() {
	fmt.Println(`pawmatch - Dog breed recommendation and similar-photo retrieval

Usage:
  pawmatch server [flags]            Start the HTTP server
  pawmatch search [flags] <image>    Find similar reachable reference photos
  pawmatch probe [flags] <url>...    Check whether URLs are reachable
  pawmatch status [flags]            Show corpus and probe log status
  pawmatch version                   Show version
  pawmatch help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/pawmatch/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (in-process mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to search in-process.
  --top-k int        Number of results (default: server default_top_k)
  --output string    Output format: text or json (default: text)

Probe Flags:
  --timeout duration     Per-request timeout (default: 6s)
  --user-agent string    User-Agent header (default: Mozilla/5.0)

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Examples:
  pawmatch server
  pawmatch search dog.jpg
  pawmatch search --top-k 10 --output json dog.jpg
  pawmatch probe https://images.example/beagle.jpg
  pawmatch status --output json`)
}
