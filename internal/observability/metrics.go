package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Metrics collects Prometheus metrics for the API and the ledgers.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ledgerOps       *prometheus.CounterVec
	salesTotal      *prometheus.CounterVec
	salesAmount     *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP, ledger and runtime collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	ledgerOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_operations_total",
		Help: "Ledger writes by ledger, operation and outcome.",
	}, []string{"ledger", "operation", "outcome"})
	sales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_sales_total",
		Help: "Committed sales by payment type.",
	}, []string{"payment_type"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_sales_amount_total",
		Help: "Committed sale totals by payment type.",
	}, []string{"payment_type"})
	registry.MustRegister(
		requests, duration, ledgerOps, sales, amount,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		ledgerOps:       ledgerOps,
		salesTotal:      sales,
		salesAmount:     amount,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
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

// ObserveLedger counts one ledger write and classifies its outcome.
func (m *Metrics) ObserveLedger(ledger, operation string, err error) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(ledger, operation, Outcome(err)).Inc()
}

// ObserveSale counts a committed sale and its total.
func (m *Metrics) ObserveSale(paymentType string, total decimal.Decimal) {
	if m == nil {
		return
	}
	m.salesTotal.WithLabelValues(paymentType).Inc()
	m.salesAmount.WithLabelValues(paymentType).Add(total.InexactFloat64())
}

// Outcome maps an error to a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, shared.ErrCreditExceeded):
		return "credit_exceeded"
	case errors.Is(err, shared.ErrInvalidPaymentAmount):
		return "invalid_amount"
	case errors.Is(err, shared.ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}

// Registerer exposes the registry for custom collectors such as job metrics.
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
