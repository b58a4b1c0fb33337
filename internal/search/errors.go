package search

import "fmt"

// DimensionError reports a query vector whose length differs from the corpus.
type DimensionError struct {
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("query dimension mismatch: got %d, corpus has %d", e.Got, e.Want)
}

// EmbeddingError wraps a failure of the embedding backend.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return "embedding failed: " + e.Err.Error() }

func (e *EmbeddingError) Unwrap() error { return e.Err }

// RankError wraps a failure while scoring the corpus.
type RankError struct {
	Err error
}

func (e *RankError) Error() string { return "ranking failed: " + e.Err.Error() }

func (e *RankError) Unwrap() error { return e.Err }
