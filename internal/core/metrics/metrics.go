package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds every ezledger collector. It is served on /metrics.
	Registry = prometheus.NewRegistry()

	ledgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ezledger",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by kind and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	ledgerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ezledger",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Duration of ledger operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"operation"},
	)

	movedAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ezledger",
			Subsystem: "ledger",
			Name:      "amount_minor_total",
			Help:      "Minor units moved by committed transfers and top-ups.",
		},
		[]string{"operation"},
	)

	commitRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ezledger",
			Subsystem: "ledger",
			Name:      "commit_retries_total",
			Help:      "Optimistic commit attempts retried after a version conflict.",
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ezledger",
			Subsystem: "notifications",
			Name:      "events_total",
			Help:      "Notification events by outcome (stored, dropped, failed).",
		},
		[]string{"outcome"},
	)

	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ezledger",
			Subsystem: "webhooks",
			Name:      "deliveries_total",
			Help:      "Webhook delivery attempts by outcome.",
		},
		[]string{"outcome"},
	)

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ezledger",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ezledger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ezledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		ledgerOps,
		ledgerDuration,
		movedAmount,
		commitRetries,
		notifications,
		webhookDeliveries,
		httpInFlight,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveLedgerOp records one ledger call. outcome is "ok" or an error kind name.
func ObserveLedgerOp(operation, outcome string, d time.Duration) {
	ledgerOps.WithLabelValues(operation, outcome).Inc()
	ledgerDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func AddMovedAmount(operation string, amount int64) {
	movedAmount.WithLabelValues(operation).Add(float64(amount))
}

func IncCommitRetry() {
	commitRetries.Inc()
}

func IncNotification(outcome string) {
	notifications.WithLabelValues(outcome).Inc()
}

func IncWebhookDelivery(outcome string) {
	webhookDeliveries.WithLabelValues(outcome).Inc()
}

func IncInFlight() { httpInFlight.Inc() }
func DecInFlight() { httpInFlight.Dec() }

func RecordHTTPRequest(method, path, status string, d time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
