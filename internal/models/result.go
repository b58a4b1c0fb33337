package models

// SearchResponse is the response for a similarity-only search.
type SearchResponse struct {
	RequestID string      `json:"request_id"`
	Similar   []Candidate `json:"similar"`
	TopK      int         `json:"top_k"`
	// Window is the number of ranked candidates handed to the liveness filter.
	Window int `json:"window"`
	// Probed is how many candidates were checked before the quota was met or the window ran out.
	Probed    int   `json:"probed"`
	QueryTime int64 `json:"query_time_ms"`
}

// RecommendResponse is the response of the combined recommendation and search endpoint.
type RecommendResponse struct {
	Recommendation string      `json:"recommendation"`
	Similar        []Candidate `json:"similar"`
}

// CorpusEntry is a single corpus locator lookup.
type CorpusEntry struct {
	Index   int     `json:"idx"`
	Locator string  `json:"url"`
	Score   float64 `json:"score,omitempty"`
}

// StatusResponse describes the loaded corpus and probe history.
type StatusResponse struct {
	CorpusSize      int         `json:"corpus_size"`
	Dimensions      int         `json:"dimensions"`
	IndexType       string      `json:"index_type"`
	OverFetchFactor int         `json:"over_fetch_factor"`
	Embedder        string      `json:"embedder"`
	Recommender     bool        `json:"recommender_enabled"`
	Probes          *ProbeStats `json:"probes,omitempty"`
	// RecentDead lists the latest failed probes, newest first.
	RecentDead     []*ProbeRecord `json:"recent_dead,omitempty"`
	DiskUsage      []PathUsage    `json:"disk_usage,omitempty"`
	DiskUsageBytes int64          `json:"disk_usage_bytes,omitempty"`
}

// PathUsage is the on-disk size of one configured path.
type PathUsage struct {
	Name  string `json:"name"`
	Bytes int64  `json:"bytes"`
}
