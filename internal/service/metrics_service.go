package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the scheduling
// engine and its HTTP surface.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	mutationsTotal  *prometheus.CounterVec
	conflictsTotal  prometheus.Counter
	auditRunsTotal  prometheus.Counter
	activeAlerts    prometheus.Gauge
	storedSessions  prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheHitRatio   prometheus.Gauge

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the service's Prometheus collectors.
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

	mutationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_mutations_total",
		Help: "Timetable mutations by operation and outcome",
	}, []string{"operation", "outcome"})

	conflictsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_conflicts_detected_total",
		Help: "Resource conflicts reported by the detector",
	})

	auditRunsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "weekly_audit_runs_total",
		Help: "Completed weekly-uniqueness audit sweeps",
	})

	activeAlerts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "duplicate_alerts_active",
		Help: "Duplicate alerts currently awaiting resolution",
	})

	storedSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_sessions",
		Help: "Sessions committed to the timetable store",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, mutationsTotal, conflictsTotal, auditRunsTotal, activeAlerts, storedSessions, cacheHits, cacheMisses, cacheHitRatio, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		mutationsTotal:  mutationsTotal,
		conflictsTotal:  conflictsTotal,
		auditRunsTotal:  auditRunsTotal,
		activeAlerts:    activeAlerts,
		storedSessions:  storedSessions,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheHitRatio:   cacheHitRatio,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveMutation records the outcome of a store mutation attempt.
func (m *MetricsService) ObserveMutation(operation string, rejected bool) {
	if m == nil {
		return
	}
	outcome := "committed"
	if rejected {
		outcome = "rejected"
	}
	m.mutationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveConflicts counts conflicts reported to callers.
func (m *MetricsService) ObserveConflicts(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.conflictsTotal.Add(float64(count))
}

// ObserveAuditRun records a completed sweep and the resulting active alerts.
func (m *MetricsService) ObserveAuditRun(activeAlerts int) {
	if m == nil {
		return
	}
	m.auditRunsTotal.Inc()
	m.activeAlerts.Set(float64(activeAlerts))
}

// SetStoredSessions tracks the committed session count.
func (m *MetricsService) SetStoredSessions(count int) {
	if m == nil {
		return
	}
	m.storedSessions.Set(float64(count))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}
