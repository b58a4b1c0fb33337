package models

import "time"

// ProbeRecord is the outcome of one reachability check.
type ProbeRecord struct {
	Locator string `json:"url" db:"locator"`
	Alive   bool   `json:"alive" db:"alive"`
	// Status is the final HTTP status code, 0 when no response was received.
	Status int `json:"status" db:"status"`
	// Method is the request that decided the outcome (HEAD or GET).
	Method    string        `json:"method" db:"method"`
	Reason    string        `json:"reason,omitempty" db:"reason"`
	Duration  time.Duration `json:"duration_ns" db:"duration_ns"`
	CheckedAt time.Time     `json:"checked_at" db:"checked_at"`
}

// ProbeStats summarizes the probe log.
type ProbeStats struct {
	Total    int64   `json:"total"`
	Dead     int64   `json:"dead"`
	DeadRate float64 `json:"dead_rate"`
	Locators int64   `json:"distinct_locators"`
}
