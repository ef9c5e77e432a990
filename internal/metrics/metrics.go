package metrics

import (
	"errors"
	"time"

	"chaintrack-provenance-go/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LedgerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of ledger operations by outcome.",
		},
		[]string{"operation", "result"},
	)

	LedgerOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	MirroredEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirrored_events_total",
			Help: "Custody events replayed into the mirror ledger.",
		},
		[]string{"result"},
	)
)

// MustRegister registers every collector on the default registry, labelled
// with the service name. Collectors are usable unregistered, which is how
// tests exercise them.
func MustRegister(serviceName string) {
	prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer).MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		LedgerOperationsTotal,
		LedgerOperationDurationSeconds,
		MirroredEventsTotal,
	)
}

// ObserveOperation records the outcome and latency of one ledger operation.
func ObserveOperation(operation string, start time.Time, err error) {
	LedgerOperationDurationSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	LedgerOperationsTotal.WithLabelValues(operation, Result(err)).Inc()
}

// Result buckets an error into a low-cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, store.ErrDuplicateIdentifier):
		return "duplicate"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalidIdentifier), errors.Is(err, store.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, store.ErrNotAuthorized):
		return "unauthorized"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrTimeout):
		return "timeout"
	case errors.Is(err, store.ErrUpstreamUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
