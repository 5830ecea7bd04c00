package models

import "time"

// SystemMetrics is a JSON snapshot of in-process counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	ReservationsCreated      uint64    `json:"reservations_created"`
	SlotConflicts            uint64    `json:"slot_conflicts"`
	SweepRuns                uint64    `json:"sweep_runs"`
	SweepFailures            uint64    `json:"sweep_failures"`
	EventsDropped            uint64    `json:"events_dropped"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
