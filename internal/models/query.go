package models

import "fmt"

// SearchQuery is the per-request search input besides the image itself.
type SearchQuery struct {
	TopK int `json:"top_k,omitempty"`
}

// Validate fills in defaultTopK when TopK is unset and clamps it to [1, maxTopK].
// A negative TopK is rejected.
func (q *SearchQuery) Validate(defaultTopK, maxTopK int) error {
	if q.TopK < 0 {
		return fmt.Errorf("top_k must not be negative, got %d", q.TopK)
	}
	if q.TopK == 0 {
		q.TopK = defaultTopK
	}
	if q.TopK < 1 {
		q.TopK = 1
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	return nil
}
