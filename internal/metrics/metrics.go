package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	resyncsTotal        prometheus.Counter
	resyncDuration      prometheus.Histogram
	markerOps           *prometheus.CounterVec
	pollsTotal          *prometheus.CounterVec
}

// New creates a fresh Metrics registry with HTTP, overlay, and poller metrics
// registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xcom",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by map-go",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "xcom",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by map-go",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	resyncsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xcom",
		Name:      "overlay_resyncs_total",
		Help:      "Total number of overlay resync passes",
	})

	resyncDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "xcom",
		Name:      "overlay_resync_duration_seconds",
		Help:      "Duration of one overlay resync pass",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	markerOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xcom",
		Name:      "overlay_marker_ops_total",
		Help:      "Marker operations issued by the reconciler",
	}, []string{"op"})

	pollsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xcom",
		Name:      "openmanet_polls_total",
		Help:      "OpenMANET poll ticks by outcome",
	}, []string{"result"})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		resyncsTotal,
		resyncDuration,
		markerOps,
		pollsTotal,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		resyncsTotal:        resyncsTotal,
		resyncDuration:      resyncDuration,
		markerOps:           markerOps,
		pollsTotal:          pollsTotal,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveResync records one full reconciliation pass.
func (m *Metrics) ObserveResync(duration time.Duration) {
	if m == nil {
		return
	}
	m.resyncsTotal.Inc()
	m.resyncDuration.Observe(duration.Seconds())
}

// AddMarkerOps counts reconciler operations by kind ("create", "move",
// "restyle", "destroy").
func (m *Metrics) AddMarkerOps(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.markerOps.WithLabelValues(op).Add(float64(n))
}

// IncPoll counts one OpenMANET poll tick by outcome ("ok", "error", "skipped").
func (m *Metrics) IncPoll(result string) {
	if m == nil {
		return
	}
	m.pollsTotal.WithLabelValues(result).Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
