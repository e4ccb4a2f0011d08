// Package telemetry exposes Prometheus metrics for the ingest pipeline.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters and the HTTP histogram.
type Metrics struct {
	registry *prometheus.Registry

	targetsTotal     *prometheus.CounterVec
	postsIngested    prometheus.Counter
	mediaRelocations *prometheus.CounterVec
	fetchAttempts    prometheus.Counter
	requestDuration  *prometheus.HistogramVec
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		targetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_targets_total",
			Help: "Scrape targets processed, labeled by final status.",
		}, []string{"status"}),
		postsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_posts_total",
			Help: "Posts upserted into the profile store.",
		}),
		mediaRelocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_media_relocations_total",
			Help: "Media relocation attempts, labeled by outcome.",
		}, []string{"outcome"}),
		fetchAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_fetch_attempts_total",
			Help: "Source fetch attempts, including retries.",
		}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// TargetProcessed increments the target counter for a final status.
func (m *Metrics) TargetProcessed(status string) {
	if m == nil {
		return
	}
	m.targetsTotal.WithLabelValues(status).Inc()
}

// PostIngested increments the post counter.
func (m *Metrics) PostIngested() {
	if m == nil {
		return
	}
	m.postsIngested.Inc()
}

// MediaRelocated increments the relocation counter for an outcome.
func (m *Metrics) MediaRelocated(outcome string) {
	if m == nil {
		return
	}
	m.mediaRelocations.WithLabelValues(outcome).Inc()
}

// FetchAttempt increments the fetch attempt counter.
func (m *Metrics) FetchAttempt() {
	if m == nil {
		return
	}
	m.fetchAttempts.Inc()
}

// Handler serves the metrics registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.requestDuration.WithLabelValues(
			r.Method,
			routePattern(r),
			strconv.Itoa(rec.status),
		).Observe(time.Since(start).Seconds())
	})
}

// routePattern returns the matched chi route pattern so that
// parameterized paths like /v1/tasks/{task_id} share one series
// instead of minting a series per task ID.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
