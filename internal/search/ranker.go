// Package search ranks the corpus against a query image and keeps the reachable matches.
package search

import (
	"context"
	"fmt"

	"github.com/hyperjump/pawmatch/internal/corpus"
	"github.com/hyperjump/pawmatch/internal/models"
	"github.com/hyperjump/pawmatch/internal/vector"
	"github.com/hyperjump/pawmatch/pkg/utils"
)

// DefaultOverFetchFactor is the window multiplier used when none is configured.
const DefaultOverFetchFactor = 3

// WindowSize returns max(topK*factor, topK), the number of ranked candidates
// handed to the liveness filter before capping at corpus size.
func WindowSize(topK, factor int) int {
	if w := topK * factor; w > topK {
		return w
	}
	return topK
}

// Ranker scores a query against every corpus entry.
type Ranker struct {
	corpus *corpus.Corpus
	index  vector.Index
	factor int
}

// NewRanker builds an exhaustive index over c. factor <= 0 uses DefaultOverFetchFactor.
func NewRanker(c *corpus.Corpus, factor int) (*Ranker, error) {
	idx, err := vector.NewMemoryIndex(c)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	if factor <= 0 {
		factor = DefaultOverFetchFactor
	}
	return &Ranker{corpus: c, index: idx, factor: factor}, nil
}

// Window returns the over-fetch window for topK, capped at the corpus size.
func (r *Ranker) Window(topK int) int {
	w := WindowSize(topK, r.factor)
	if n := r.corpus.Len(); w > n {
		return n
	}
	return w
}

// OverFetchFactor returns the configured window multiplier.
func (r *Ranker) OverFetchFactor() int { return r.factor }

// Index returns the underlying vector index.
func (r *Ranker) Index() vector.Index { return r.index }

// Rank returns the over-fetch window for topK in descending similarity, ties by ascending index.
// The query is normalized on a copy; the caller's slice is not modified.
func (r *Ranker) Rank(ctx context.Context, query []float32, topK int) ([]models.Candidate, error) {
	if want := r.corpus.Dimensions(); len(query) != want {
		return nil, &DimensionError{Got: len(query), Want: want}
	}
	if topK <= 0 {
		return nil, &RankError{Err: fmt.Errorf("top_k must be positive, got %d", topK)}
	}
	if j := utils.FirstNonFinite(query); j >= 0 {
		return nil, &RankError{Err: fmt.Errorf("query value %d is %v", j, query[j])}
	}
	q := make([]float32, len(query))
	copy(q, query)
	utils.NormalizeL2(q)

	hits, err := r.index.Search(ctx, q, r.Window(topK))
	if err != nil {
		return nil, &RankError{Err: err}
	}
	out := make([]models.Candidate, len(hits))
	for i, h := range hits {
		loc, _ := r.corpus.Locator(h.Index)
		out[i] = models.Candidate{Index: h.Index, Similarity: h.Score, Locator: loc}
	}
	return out, nil
}
