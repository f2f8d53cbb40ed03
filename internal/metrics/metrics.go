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
	spliceOperations    *prometheus.CounterVec
	pathValidations     *prometheus.CounterVec
	portSyncs           *prometheus.CounterVec
	sessionsActive      prometheus.Gauge
}

// New creates a fresh Metrics registry with HTTP and splicing metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "osp",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by osp-core",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "osp",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by osp-core",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	spliceOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "osp",
		Name:      "splice_operations_total",
		Help:      "Splice, cut and release operations by outcome",
	}, []string{"op", "result"})

	pathValidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "osp",
		Name:      "path_validations_total",
		Help:      "Container path validations by outcome",
	}, []string{"result"})

	portSyncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "osp",
		Name:      "port_syncs_total",
		Help:      "SNMP port inventory syncs by outcome",
	}, []string{"result"})

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "osp",
		Name:      "sessions_active",
		Help:      "Open mid-span splicing sessions",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		spliceOperations,
		pathValidations,
		portSyncs,
		sessionsActive,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		spliceOperations:    spliceOperations,
		pathValidations:     pathValidations,
		portSyncs:           portSyncs,
		sessionsActive:      sessionsActive,
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

// IncSpliceOperation counts one splice/cut/release outcome
// ("ok", "rejected" or "error").
func (m *Metrics) IncSpliceOperation(op, result string) {
	if m == nil {
		return
	}
	m.spliceOperations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) IncPathValidation(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.pathValidations.WithLabelValues(result).Inc()
}

func (m *Metrics) IncPortSync(result string) {
	if m == nil {
		return
	}
	m.portSyncs.WithLabelValues(result).Inc()
}

// SetSessionsActive reports the number of open sessions.
func (m *Metrics) SetSessionsActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
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
