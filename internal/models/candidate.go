// Package models defines the data exchanged between the search pipeline, storage and the HTTP API.
package models

// Candidate is one ranked corpus entry.
// Similarity is the dot product of two unit vectors, in [-1, 1].
type Candidate struct {
	Index      int     `json:"idx"`
	Similarity float64 `json:"sim"`
	Locator    string  `json:"url"`
}
