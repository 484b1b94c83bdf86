// Package metrics exposes Prometheus metrics for the fee service.
// All collectors live on a dedicated registry so tests can create as many
// Metrics instances as they need.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/music-school/student-fees/internal/domain/shared"
)

const namespace = "student_fees"

// Metrics holds the service collectors.
type Metrics struct {
	registry *prometheus.Registry

	feesAdded       *prometheus.CounterVec
	feesPaid        prometheus.Counter
	chargedAmount   prometheus.Counter
	paidAmount      prometheus.Counter
	commandFailures *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInflight prometheus.Gauge
}

// New creates the collectors on a fresh registry, including Go runtime and process metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		feesAdded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fees_added_total",
				Help:      "Total number of fees added to student accounts",
			},
			[]string{"account"},
		),
		feesPaid: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_paid_total",
			Help:      "Total number of fees paid",
		}),
		chargedAmount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charged_amount_total",
			Help:      "Sum of all fee amounts charged",
		}),
		paidAmount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paid_amount_total",
			Help:      "Sum of all fee amounts paid",
		}),
		commandFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "command_failures_total",
				Help:      "Failed fee commands by command and error kind",
			},
			[]string{"command", "kind"},
		),

		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
		httpInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_inflight_requests",
			Help:      "HTTP requests currently being served",
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND RECORDER
// ══════════════════════════════════════════════════════════════════════════════

// FeeAdded records a successful add-fee command.
func (m *Metrics) FeeAdded(amount decimal.Decimal, accountCreated bool) {
	label := "existing"
	if accountCreated {
		label = "created"
	}
	m.feesAdded.WithLabelValues(label).Inc()
	m.chargedAmount.Add(amount.InexactFloat64())
}

// FeePaid records a successful pay-fee command.
func (m *Metrics) FeePaid(amount decimal.Decimal) {
	m.feesPaid.Inc()
	m.paidAmount.Add(amount.InexactFloat64())
}

// CommandFailed records a failed command under a coarse error kind.
func (m *Metrics) CommandFailed(command string, err error) {
	m.commandFailures.WithLabelValues(command, ErrorKind(err)).Inc()
}

// ErrorKind maps an error to a low-cardinality label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case shared.IsValidation(err):
		return "validation"
	case shared.IsNotFound(err):
		return "not_found"
	case shared.IsConflict(err):
		return "conflict"
	case errors.Is(err, shared.ErrInvalidRecord):
		return "corrupt_record"
	case shared.IsRetryable(err):
		return "unavailable"
	default:
		return "internal"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware records request count, latency and in-flight requests.
// Routes are labelled by their chi pattern to keep cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.httpInflight.Inc()
		defer m.httpInflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
