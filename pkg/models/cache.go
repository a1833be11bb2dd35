package models

import "time"

// CacheEntry stores a previously computed answer for a normalized question.
type CacheEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Subject     string    `json:"subject"`
	Question    string    `json:"question"`
	Response    string    `json:"response"`
	HitCount    int64     `json:"hit_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// CacheStats reports cache contents and in-process performance counters.
type CacheStats struct {
	Entries           int64   `json:"entries"`
	AvgHits           float64 `json:"avg_hits"`
	MostCachedSubject string  `json:"most_cached_subject"`
	Hits              int64   `json:"hits"`
	Misses            int64   `json:"misses"`
}

// CachedQuestion is a row of the most reused cache entries.
type CachedQuestion struct {
	Subject  string `json:"subject"`
	Question string `json:"question"`
	HitCount int64  `json:"hit_count"`
}
