package liveness

import (
	"context"
	"time"

	"github.com/hyperjump/pawmatch/internal/metrics"
	"github.com/hyperjump/pawmatch/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Recorder receives every probe outcome the filter consumed.
type Recorder interface {
	RecordProbe(ctx context.Context, rec *models.ProbeRecord) error
}

// Filter keeps the reachable candidates of a ranked list, in rank order, up to a quota.
type Filter struct {
	checker     Checker
	concurrency int
	logger      *zap.Logger
	metrics     *metrics.Metrics
	recorder    Recorder
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithLogger sets a logger for per-probe debug output.
func WithLogger(l *zap.Logger) FilterOption {
	return func(f *Filter) { f.logger = l }
}

// WithConcurrency probes up to n candidates at once. n <= 1 probes sequentially.
func WithConcurrency(n int) FilterOption {
	return func(f *Filter) { f.concurrency = n }
}

// WithMetrics records probe outcomes in m.
func WithMetrics(m *metrics.Metrics) FilterOption {
	return func(f *Filter) { f.metrics = m }
}

// WithRecorder appends probe outcomes to r.
func WithRecorder(r Recorder) FilterOption {
	return func(f *Filter) { f.recorder = r }
}

// NewFilter creates a filter that uses checker for each candidate.
func NewFilter(checker Checker, opts ...FilterOption) *Filter {
	f := &Filter{checker: checker, concurrency: 1, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	return f
}

// FilterAlive walks candidates in order and returns the first topK that are reachable,
// along with how many candidates were probed. It never reorders and never fails:
// a shorter result means the window ran out of live entries. A cancelled ctx stops
// the walk and returns what was accepted so far.
func (f *Filter) FilterAlive(ctx context.Context, candidates []models.Candidate, topK int) ([]models.Candidate, int) {
	if topK <= 0 || len(candidates) == 0 {
		return []models.Candidate{}, 0
	}
	if f.concurrency > 1 {
		return f.filterParallel(ctx, candidates, topK)
	}

	live := make([]models.Candidate, 0, topK)
	probed := 0
	for _, c := range candidates {
		if len(live) >= topK || ctx.Err() != nil {
			break
		}
		res := f.checker.Probe(ctx, c.Locator)
		if res.Cancelled {
			break
		}
		probed++
		f.observe(ctx, c, res)
		if res.Alive {
			live = append(live, c)
		}
	}
	return live, probed
}

// filterParallel probes ahead with bounded concurrency but accepts strictly in rank order.
// Once the quota is met, in-flight probes are cancelled and their outcomes discarded.
func (f *Filter) filterParallel(ctx context.Context, candidates []models.Candidate, topK int) ([]models.Candidate, int) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]chan Result, len(candidates))
	for i := range outcomes {
		outcomes[i] = make(chan Result, 1)
	}
	sem := semaphore.NewWeighted(int64(f.concurrency))
	go func() {
		for i, c := range candidates {
			if err := sem.Acquire(ctx, 1); err != nil {
				for j := i; j < len(candidates); j++ {
					outcomes[j] <- Result{Cancelled: true, Reason: err.Error()}
				}
				return
			}
			go func(i int, locator string) {
				defer sem.Release(1)
				outcomes[i] <- f.checker.Probe(ctx, locator)
			}(i, c.Locator)
		}
	}()

	live := make([]models.Candidate, 0, topK)
	probed := 0
	for i, c := range candidates {
		if len(live) >= topK {
			break
		}
		res := <-outcomes[i]
		if res.Cancelled {
			break
		}
		probed++
		f.observe(ctx, c, res)
		if res.Alive {
			live = append(live, c)
		}
	}
	return live, probed
}

func (f *Filter) observe(ctx context.Context, c models.Candidate, res Result) {
	f.logger.Debug("probe",
		zap.Int("idx", c.Index),
		zap.String("url", c.Locator),
		zap.Bool("alive", res.Alive),
		zap.String("method", res.Method),
		zap.Int("status", res.Status),
		zap.String("reason", res.Reason),
		zap.Duration("duration", res.Duration),
	)
	f.metrics.ObserveProbe(res.Alive, res.Method)
	if f.recorder == nil {
		return
	}
	rec := &models.ProbeRecord{
		Locator:   c.Locator,
		Alive:     res.Alive,
		Status:    res.Status,
		Method:    res.Method,
		Reason:    res.Reason,
		Duration:  res.Duration,
		CheckedAt: time.Now(),
	}
	if err := f.recorder.RecordProbe(context.WithoutCancel(ctx), rec); err != nil {
		f.logger.Warn("record probe failed", zap.String("url", c.Locator), zap.Error(err))
	}
}
