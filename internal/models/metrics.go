package models

import "time"

// MetricsSnapshot is a point-in-time view of the engine's counters.
type MetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	LessonsGenerated         uint64    `json:"lessons_generated"`
	AttendanceMarks          uint64    `json:"attendance_marks"`
	ScheduleConflicts        uint64    `json:"schedule_conflicts"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
