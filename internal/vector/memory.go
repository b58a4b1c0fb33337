package vector

import (
	"context"
	"fmt"
	"sort"
)

// ctxCheckEvery is how many rows are scored between context checks.
const ctxCheckEvery = 4096

// MemoryIndex scores every vector of its source against the query.
// It never mutates the source and is safe for concurrent searches.
type MemoryIndex struct {
	src Source
}

// NewMemoryIndex creates an exhaustive index over src.
func NewMemoryIndex(src Source) (*MemoryIndex, error) {
	if src == nil {
		return nil, fmt.Errorf("nil vector source")
	}
	if src.Dimensions() <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{src: src}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return IndexTypeMemory
}

// Search returns the top-k vectors by inner product, highest first.
// Equal scores are ordered by ascending index, so results are deterministic.
// k larger than the index size returns every vector.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	dim := m.src.Dimensions()
	if len(query) != dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), dim)
	}
	n := m.src.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	scores := make([]VectorResult, n)
	for i := 0; i < n; i++ {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		scores[i] = VectorResult{Index: i, Score: InnerProduct(query, m.src.Vector(i))}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Index < scores[j].Index
	})
	if k > n {
		k = n
	}
	return scores[:k:k], nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	return m.src.Len()
}

// Dimensions returns the vector length.
func (m *MemoryIndex) Dimensions() int {
	return m.src.Dimensions()
}
