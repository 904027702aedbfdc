package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for bundlesize.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Fetch metrics
	fetchTotal     *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	fetchCacheHits prometheus.Counter

	// Bundle metrics
	bundlesTotal   *prometheus.CounterVec
	bundleDuration prometheus.Histogram
	bundleSize     prometheus.Histogram
	bundlesActive  prometheus.Gauge

	// Worker protocol metrics
	workerMessagesTotal *prometheus.CounterVec
	workerConnections   prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg.
// Passing nil registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlesize_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bundlesize_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bundlesize_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		fetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlesize_fetch_total",
				Help: "Total number of outbound registry fetches",
			},
			[]string{"status"},
		),
		fetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bundlesize_fetch_duration_seconds",
				Help:    "Outbound registry fetch latency in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		fetchCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bundlesize_fetch_cache_hits_total",
				Help: "Total number of fetches served by the response cache",
			},
		),

		bundlesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlesize_bundles_total",
				Help: "Total number of bundle runs",
			},
			[]string{"outcome"},
		),
		bundleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bundlesize_bundle_duration_seconds",
				Help:    "Bundle run latency in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		bundleSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bundlesize_bundle_size_bytes",
				Help:    "Minified bundle size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 4, 10),
			},
		),
		bundlesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bundlesize_bundles_in_flight",
				Help: "Current number of bundle runs in progress",
			},
		),

		workerMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundlesize_worker_messages_total",
				Help: "Total number of worker protocol messages",
			},
			[]string{"direction", "type"},
		),
		workerConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bundlesize_worker_connections",
				Help: "Current number of WebSocket worker connections",
			},
		),
	}
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		// fasthttp reuses the request buffer; label values outlive the request
		path := normalizePath(utils.CopyString(c.Path()))
		method := utils.CopyString(c.Method())

		err := c.Next()

		status := statusClass(c.Response().StatusCode())
		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())

		return err
	}
}

// RecordFetch records an outbound fetch. status is the HTTP status code, 0 for network errors.
func (m *Metrics) RecordFetch(status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := statusClass(status)
	if status == 0 {
		label = "network_error"
	}
	m.fetchTotal.WithLabelValues(label).Inc()
	m.fetchDuration.Observe(duration.Seconds())
}

// RecordCacheHit records a fetch served from the response cache
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.fetchCacheHits.Inc()
}

// BundleStarted marks a bundle run as in flight
func (m *Metrics) BundleStarted() {
	if m == nil {
		return
	}
	m.bundlesActive.Inc()
}

// RecordBundle records a finished bundle run. outcome is one of "success", "bundle_error", "minify_error".
func (m *Metrics) RecordBundle(outcome string, duration time.Duration, size int) {
	if m == nil {
		return
	}
	m.bundlesActive.Dec()
	m.bundlesTotal.WithLabelValues(outcome).Inc()
	m.bundleDuration.Observe(duration.Seconds())
	if outcome == "success" {
		m.bundleSize.Observe(float64(size))
	}
}

// RecordWorkerMessage records a worker protocol message. direction is "in" or "out".
func (m *Metrics) RecordWorkerMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.workerMessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// UpdateWorkerConnections sets the number of open WebSocket worker connections
func (m *Metrics) UpdateWorkerConnections(delta int) {
	if m == nil {
		return
	}
	m.workerConnections.Add(float64(delta))
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	if m == nil || m.gatherer == nil {
		return adaptor.HTTPHandler(promhttp.Handler())
	}
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

// normalizePath keeps label cardinality bounded
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
