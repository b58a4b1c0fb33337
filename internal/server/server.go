// Package server provides the HTTP API for pawmatch.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/pawmatch/internal/config"
	"github.com/hyperjump/pawmatch/internal/corpus"
	"github.com/hyperjump/pawmatch/internal/metrics"
	"github.com/hyperjump/pawmatch/internal/models"
	"github.com/hyperjump/pawmatch/internal/search"
	"github.com/hyperjump/pawmatch/internal/storage"
	"go.uber.org/zap"
)

// Recommender turns a lifestyle description and a JPEG photo into a breed recommendation.
type Recommender interface {
	Recommend(ctx context.Context, userText string, jpegImage []byte) (string, error)
}

// LocatorLookup finds corpus entries by locator terms.
type LocatorLookup interface {
	Lookup(ctx context.Context, query string, limit int) ([]models.CorpusEntry, error)
}

// Server is the HTTP server for the pawmatch API.
type Server struct {
	engine      *search.Engine
	corpus      *corpus.Corpus
	config      *config.Config
	logger      *zap.Logger
	recommender Recommender
	locators    LocatorLookup
	probeLog    storage.ProbeLog
	metrics     *metrics.Metrics
	server      *http.Server
}

// ServerOption configures optional collaborators.
type ServerOption func(*Server)

// WithRecommender enables recommendations on /recommend-and-search.
func WithRecommender(r Recommender) ServerOption {
	return func(s *Server) { s.recommender = r }
}

// WithLocatorLookup enables /api/v1/corpus?q= lookups.
func WithLocatorLookup(l LocatorLookup) ServerOption {
	return func(s *Server) { s.locators = l }
}

// WithProbeLog exposes probe history in status and corpus entry responses.
func WithProbeLog(p storage.ProbeLog) ServerOption {
	return func(s *Server) { s.probeLog = p }
}

// WithMetrics serves m on the configured metrics path.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server with the given dependencies.
func NewServer(engine *search.Engine, c *corpus.Corpus, cfg *config.Config, logger *zap.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: engine,
		corpus: c,
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Post("/recommend-and-search", s.handleRecommendAndSearch)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/status", s.handleStatus)
		r.Get("/corpus", s.handleCorpusLookup)
		r.Get("/corpus/{idx}", s.handleCorpusEntry)
	})

	if s.metrics != nil && s.config.Metrics.Enabled {
		r.Method(http.MethodGet, s.config.Metrics.Path, s.metrics.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr), zap.Int("corpus", s.corpus.Len()))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
