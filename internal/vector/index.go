// Package vector provides exhaustive similarity search over a fixed set of vectors.
package vector

import "context"

// Source is a read-only, index-addressable set of vectors of equal length.
type Source interface {
	Len() int
	Dimensions() int
	Vector(i int) []float32
}

// Index ranks stored vectors against a query.
type Index interface {
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)
	Type() string
	Size() int
	Dimensions() int
}

// VectorResult is a single hit. Index is the position of the vector in its Source.
type VectorResult struct {
	Index int
	Score float64 // Inner product (cosine similarity for unit vectors)
}

// IndexTypeMemory identifies the brute-force in-memory index.
const IndexTypeMemory = "memory"
