package search

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/pawmatch/internal/embedding"
	"github.com/hyperjump/pawmatch/internal/liveness"
	"github.com/hyperjump/pawmatch/internal/metrics"
	"github.com/hyperjump/pawmatch/internal/models"
	"go.uber.org/zap"
)

// ErrInvalidTopK is returned for a non-positive result count.
var ErrInvalidTopK = errors.New("top_k must be at least 1")

// AliveFilter keeps the reachable candidates of a ranked window.
type AliveFilter interface {
	FilterAlive(ctx context.Context, candidates []models.Candidate, topK int) ([]models.Candidate, int)
}

// Engine runs embed, rank and liveness filtering for one request at a time.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	embedder embedding.Embedder
	ranker   *Ranker
	filter   AliveFilter
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for the per-search summary line.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records stage durations and outcomes in m.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(embedder embedding.Embedder, ranker *Ranker, filter AliveFilter, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder: embedder,
		ranker:   ranker,
		filter:   filter,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ranker returns the engine's ranker.
func (e *Engine) Ranker() *Ranker { return e.ranker }

// Embedder returns the engine's embedder.
func (e *Engine) Embedder() embedding.Embedder { return e.embedder }

// Search embeds img and returns up to topK reachable corpus entries, most similar first.
// Embedding failures are returned as *EmbeddingError and ranking failures as *DimensionError
// or *RankError. Fewer than topK results is not an error unless ctx ended before the
// window was exhausted, in which case the context error is returned wrapped.
func (e *Engine) Search(ctx context.Context, img image.Image, topK int) (*models.SearchResponse, error) {
	if topK < 1 {
		return nil, ErrInvalidTopK
	}
	start := time.Now()
	requestID := uuid.NewString()

	stage := time.Now()
	query, err := e.embedder.Embed(ctx, img)
	e.metrics.ObserveStage(metrics.StageEmbed, time.Since(stage))
	if err != nil {
		err = &EmbeddingError{Err: err}
		e.fail(requestID, topK, start, err)
		return nil, err
	}
	return e.searchVector(ctx, requestID, start, query, topK)
}

// SearchVector runs the rank and filter stages for an already embedded query.
func (e *Engine) SearchVector(ctx context.Context, query []float32, topK int) (*models.SearchResponse, error) {
	if topK < 1 {
		return nil, ErrInvalidTopK
	}
	return e.searchVector(ctx, uuid.NewString(), time.Now(), query, topK)
}

func (e *Engine) searchVector(ctx context.Context, requestID string, start time.Time, query []float32, topK int) (*models.SearchResponse, error) {
	stage := time.Now()
	window, err := e.ranker.Rank(ctx, query, topK)
	e.metrics.ObserveStage(metrics.StageRank, time.Since(stage))
	if err != nil {
		e.fail(requestID, topK, start, err)
		return nil, err
	}

	stage = time.Now()
	live, probed := e.filter.FilterAlive(ctx, window, topK)
	e.metrics.ObserveStage(metrics.StageFilter, time.Since(stage))
	if len(live) < topK && ctx.Err() != nil {
		// the walk was cut short, so the shortfall says nothing about the window
		err := fmt.Errorf("liveness check interrupted after %d of %d candidates: %w", probed, len(window), ctx.Err())
		e.fail(requestID, topK, start, err)
		return nil, err
	}

	elapsed := time.Since(start)
	e.metrics.ObserveSearch("ok", len(live), topK)
	e.logger.Info("search",
		zap.String("request_id", requestID),
		zap.Int("top_k", topK),
		zap.Int("window", len(window)),
		zap.Int("probed", probed),
		zap.Int("live", len(live)),
		zap.Duration("duration", elapsed),
	)
	return &models.SearchResponse{
		RequestID: requestID,
		Similar:   live,
		TopK:      topK,
		Window:    len(window),
		Probed:    probed,
		QueryTime: elapsed.Milliseconds(),
	}, nil
}

func (e *Engine) fail(requestID string, topK int, start time.Time, err error) {
	e.metrics.ObserveSearch(ErrorClass(err), 0, topK)
	e.logger.Warn("search failed",
		zap.String("request_id", requestID),
		zap.Int("top_k", topK),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)
}

// ErrorClass names the failure category of a search error for metrics and responses.
func ErrorClass(err error) string {
	var (
		dimErr  *DimensionError
		embErr  *EmbeddingError
		rankErr *RankError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &dimErr):
		return "dimension_error"
	case errors.As(err, &embErr):
		return "embedding_error"
	case errors.As(err, &rankErr):
		return "rank_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

var _ AliveFilter = (*liveness.Filter)(nil)
