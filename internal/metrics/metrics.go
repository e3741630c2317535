// Package metrics exposes the Prometheus collectors used across SeaNotes.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "seanotes"

// Metrics owns a registry and the application collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	aiRequests *prometheus.CounterVec
	aiDuration *prometheus.HistogramVec

	cacheOps       *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
	sseConnections prometheus.Gauge
	serviceHealth  *prometheus.GaugeVec
	jobRuns        *prometheus.CounterVec
}

// New creates a Metrics value with its own registry, including Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "path"}),
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "requests_total",
			Help:      "Total number of inference requests.",
		}, []string{"provider", "operation", "status"}),
		aiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "request_duration_seconds",
			Help:      "Duration of inference requests.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"provider", "operation"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Cache lookups by result.",
		}, []string{"cache", "result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"policy"}),
		sseConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "connections",
			Help:      "Open live-update connections.",
		}),
		serviceHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "service_healthy",
			Help:      "1 when the dependency is configured and reachable.",
		}, []string{"service"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Background job runs by outcome.",
		}, []string{"job", "status"}),
	}

	m.Registry = prometheus.NewRegistry()
	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.aiRequests,
		m.aiDuration,
		m.cacheOps,
		m.rateLimited,
		m.sseConnections,
		m.serviceHealth,
		m.jobRuns,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records a completed request against its route template.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	method = strings.ToUpper(method)
	path = canonicalPath(path)
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAIRequest records an inference call.
func (m *Metrics) RecordAIRequest(provider, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	m.aiRequests.WithLabelValues(provider, operation, status).Inc()
	m.aiDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheOps.WithLabelValues(cache, result).Inc()
}

// RecordRateLimited records a rejected request.
func (m *Metrics) RecordRateLimited(policy string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(policy).Inc()
}

// ConnectionOpened and ConnectionClosed track live-update streams.
func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.sseConnections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.sseConnections.Dec()
	}
}

// SetServiceHealth exports the latest status of a dependency.
func (m *Metrics) SetServiceHealth(service string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.serviceHealth.WithLabelValues(service).Set(v)
}

// RecordJobRun records the outcome of a background job.
func (m *Metrics) RecordJobRun(job string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
}

// StatusLabel converts an HTTP status code to a label value.
func StatusLabel(code int) string {
	return strconv.Itoa(code)
}

// canonicalPath collapses identifiers in raw paths when no route template is available.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	if strings.Contains(raw, "{") {
		return raw
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	switch parts[0] {
	case "notes", "environments", "users":
		if len(parts) >= 2 && parts[1] != "search" && parts[1] != "query" && parts[1] != "qa" {
			parts[1] = "{id}"
		}
	case "billing":
		if len(parts) >= 3 && parts[1] == "invoices" {
			parts[2] = "{number}"
		}
	}
	return "/" + strings.Join(parts, "/")
}
