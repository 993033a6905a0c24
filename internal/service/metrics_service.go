package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	lessonsGenerated   *prometheus.CounterVec
	lessonTransitions  *prometheus.CounterVec
	sessionTransitions *prometheus.CounterVec
	attendanceMarks    *prometheus.CounterVec
	scheduleConflicts  *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	lessonsCreatedCount  uint64
	marksWrittenCount    uint64
	conflictCount        uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	lessonsGenerated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lessons_generated_total",
		Help: "Lessons materialised from schedules, by outcome",
	}, []string{"result"})

	lessonTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_transitions_total",
		Help: "Lesson status transitions, by target status",
	}, []string{"to"})

	sessionTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_transitions_total",
		Help: "Lesson session status transitions, by target status",
	}, []string{"to"})

	attendanceMarks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Attendance marks processed, by parent kind and outcome",
	}, []string{"parent", "result"})

	scheduleConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_conflicts_total",
		Help: "Schedule conflicts detected, by dimension and severity",
	}, []string{"type", "severity"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses,
		lessonsGenerated, lessonTransitions, sessionTransitions, attendanceMarks, scheduleConflicts, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		lessonsGenerated:   lessonsGenerated,
		lessonTransitions:  lessonTransitions,
		sessionTransitions: sessionTransitions,
		attendanceMarks:    attendanceMarks,
		scheduleConflicts:  scheduleConflicts,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// RecordGeneration counts created and already-existing lessons of one generation run.
func (m *MetricsService) RecordGeneration(created, existing int) {
	if m == nil {
		return
	}
	m.lessonsGenerated.WithLabelValues("created").Add(float64(created))
	m.lessonsGenerated.WithLabelValues("existing").Add(float64(existing))
	atomic.AddUint64(&m.lessonsCreatedCount, uint64(created))
}

// RecordGenerationFailure counts a rolled-back generation run.
func (m *MetricsService) RecordGenerationFailure() {
	if m == nil {
		return
	}
	m.lessonsGenerated.WithLabelValues("failed").Inc()
}

// RecordLessonTransition counts a lesson moving into status.
func (m *MetricsService) RecordLessonTransition(status models.LessonStatus) {
	if m == nil {
		return
	}
	m.lessonTransitions.WithLabelValues(string(status)).Inc()
}

// RecordSessionTransition counts a session moving into status.
func (m *MetricsService) RecordSessionTransition(status models.SessionStatus) {
	if m == nil {
		return
	}
	m.sessionTransitions.WithLabelValues(string(status)).Inc()
}

// RecordAttendanceMarks counts the outcome of one attendance batch.
func (m *MetricsService) RecordAttendanceMarks(kind models.ParentKind, marked, failed int) {
	if m == nil {
		return
	}
	m.attendanceMarks.WithLabelValues(string(kind), "marked").Add(float64(marked))
	m.attendanceMarks.WithLabelValues(string(kind), "failed").Add(float64(failed))
	atomic.AddUint64(&m.marksWrittenCount, uint64(marked))
}

// RecordConflicts counts detected schedule conflicts.
func (m *MetricsService) RecordConflicts(conflicts []models.ScheduleConflict) {
	if m == nil {
		return
	}
	for _, c := range conflicts {
		m.scheduleConflicts.WithLabelValues(string(c.Type), string(c.Severity)).Inc()
	}
	atomic.AddUint64(&m.conflictCount, uint64(len(conflicts)))
}

// Snapshot returns aggregated counters for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.MetricsSnapshot {
	if m == nil {
		return models.MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.MetricsSnapshot{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		LessonsGenerated:         atomic.LoadUint64(&m.lessonsCreatedCount),
		AttendanceMarks:          atomic.LoadUint64(&m.marksWrittenCount),
		ScheduleConflicts:        atomic.LoadUint64(&m.conflictCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
