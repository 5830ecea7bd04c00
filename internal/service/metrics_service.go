package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jinhwansong/konnect-back-sub000/internal/models"
)

// MetricsService owns the Prometheus registry and exposes lightweight snapshots.
// Every method is safe on a nil receiver.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	transitions     *prometheus.CounterVec
	slotConflicts   prometheus.Counter
	payments        *prometheus.CounterVec
	processorCalls  *prometheus.HistogramVec
	sweepDuration   *prometheus.HistogramVec
	sweepAffected   *prometheus.CounterVec
	sweepFailures   *prometheus.CounterVec
	events          *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	createdCount         uint64
	conflictCount        uint64
	sweepRunCount        uint64
	sweepFailureCount    uint64
	eventDropCount       uint64
}

// NewMetricsService registers the service's collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservation_transitions_total",
			Help: "Reservation status transitions by target status and trigger",
		}, []string{"status", "trigger"}),
		slotConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservation_slot_conflicts_total",
			Help: "Reservation attempts refused because the slot was held",
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment outcomes by operation and result",
		}, []string{"operation", "result"}),
		processorCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payment_processor_duration_seconds",
			Help:    "Latency of payment processor calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of periodic reservation sweeps",
			Buckets: prometheus.DefBuckets,
		}, []string{"sweep"}),
		sweepAffected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_rows_affected_total",
			Help: "Reservations transitioned by periodic sweeps",
		}, []string{"sweep"}),
		sweepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_failures_total",
			Help: "Sweep executions that returned an error",
		}, []string{"sweep"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservation_events_total",
			Help: "Downstream reservation events by type and outcome",
		}, []string{"type", "outcome"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.transitions, m.slotConflicts, m.payments, m.processorCalls,
		m.sweepDuration, m.sweepAffected, m.sweepFailures, m.events,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
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

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
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

// RecordCacheOperation records a cache hit or miss and updates the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks cache write latency.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordTransition counts a reservation entering status.
func (m *MetricsService) RecordTransition(status models.ReservationStatus, trigger string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.transitions.WithLabelValues(string(status), trigger).Add(float64(count))
	if status == models.ReservationPending {
		atomic.AddUint64(&m.createdCount, uint64(count))
	}
}

// RecordSlotConflict counts a refused booking.
func (m *MetricsService) RecordSlotConflict() {
	if m == nil {
		return
	}
	m.slotConflicts.Inc()
	atomic.AddUint64(&m.conflictCount, 1)
}

// RecordPayment counts a payment outcome.
func (m *MetricsService) RecordPayment(operation, result string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(operation, result).Inc()
}

// ObserveProcessorCall tracks payment processor latency.
func (m *MetricsService) ObserveProcessorCall(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.processorCalls.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveSweep records one sweep execution.
func (m *MetricsService) ObserveSweep(name models.SweepName, affected int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	label := string(name)
	m.sweepDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.sweepRunCount, 1)
	if err != nil {
		m.sweepFailures.WithLabelValues(label).Inc()
		atomic.AddUint64(&m.sweepFailureCount, 1)
		return
	}
	if affected > 0 {
		m.sweepAffected.WithLabelValues(label).Add(float64(affected))
	}
}

// RecordEvent counts a downstream event outcome.
func (m *MetricsService) RecordEvent(eventType models.EventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(eventType), outcome).Inc()
	if outcome == EventOutcomeDropped {
		atomic.AddUint64(&m.eventDropCount, 1)
	}
}

// Snapshot returns aggregated counters for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
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

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		ReservationsCreated:      atomic.LoadUint64(&m.createdCount),
		SlotConflicts:            atomic.LoadUint64(&m.conflictCount),
		SweepRuns:                atomic.LoadUint64(&m.sweepRunCount),
		SweepFailures:            atomic.LoadUint64(&m.sweepFailureCount),
		EventsDropped:            atomic.LoadUint64(&m.eventDropCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
