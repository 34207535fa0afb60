package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	movementsTotal       *prometheus.CounterVec
	reconciliationsTotal prometheus.Counter
	correctionsTotal     prometheus.Counter
	invalidRowsTotal     prometheus.Counter
}

// NewMetrics initializes the registry and the base metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "larder_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_stock_movements_total",
		Help: "Ledger entries appended, by direction and source.",
	}, []string{"direction", "source"})
	reconciliations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "larder_reconciliations_total",
		Help: "Reconciliation batches applied.",
	})
	corrections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "larder_reconciliation_corrections_total",
		Help: "Corrective ledger entries emitted by reconciliations.",
	})
	invalidRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "larder_reconciliation_invalid_rows_total",
		Help: "Count rows rejected during reconciliation.",
	})
	registry.MustRegister(requests, duration, movements, reconciliations, corrections, invalidRows)
	return &Metrics{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:        requests,
		requestDuration:      duration,
		movementsTotal:       movements,
		reconciliationsTotal: reconciliations,
		correctionsTotal:     corrections,
		invalidRowsTotal:     invalidRows,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveMovement counts one appended ledger entry.
func (m *Metrics) ObserveMovement(direction, source string) {
	if m == nil {
		return
	}
	m.movementsTotal.WithLabelValues(direction, source).Inc()
}

// ObserveReconciliation counts one applied batch and its outcomes.
func (m *Metrics) ObserveReconciliation(corrections, invalidRows int) {
	if m == nil {
		return
	}
	m.reconciliationsTotal.Inc()
	m.correctionsTotal.Add(float64(corrections))
	m.invalidRowsTotal.Add(float64(invalidRows))
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
