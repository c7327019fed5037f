// Package metrics holds Prometheus collectors for ingestion, storage,
// dashboard aggregation, the access gate, and notifications.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alertdesk"

var (
	// AlertsIngestedTotal counts alerts persisted by type and ingestion source.
	AlertsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_ingested_total",
			Help:      "Alerts persisted, by type and ingestion source",
		},
		[]string{"type", "source"},
	)

	// IngestRejectedTotal counts ingestion attempts that did not persist.
	IngestRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rejected_total",
			Help:      "Ingestion attempts rejected, by source and reason",
		},
		[]string{"source", "reason"},
	)

	// StoreOperationDuration tracks alert store latency by backend, operation and outcome.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Alert store operation latency",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
		},
		[]string{"backend", "op", "outcome"},
	)

	// DashboardTierServedTotal counts which tier answered each dashboard section.
	DashboardTierServedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_tier_served_total",
			Help:      "Dashboard sections served, by section and tier",
		},
		[]string{"section", "tier"},
	)

	// DashboardTierFailuresTotal counts tier attempts that fell through.
	DashboardTierFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_tier_failures_total",
			Help:      "Dashboard tier failures, by section and tier",
		},
		[]string{"section", "tier"},
	)

	// UpstreamRequestsTotal counts upstream provider calls by endpoint and outcome.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream provider requests, by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	// UpstreamBreakerState exposes breaker state (0 closed, 1 half-open, 2 open).
	UpstreamBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_breaker_state",
			Help:      "Upstream circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"breaker"},
	)

	// GateDecisionsTotal counts access gate verdicts by path class.
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Access gate decisions, by path class and verdict",
		},
		[]string{"class", "verdict"},
	)

	// NotificationsTotal counts notification deliveries by channel and outcome.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Alert notifications, by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// HTTPRequestDuration tracks handler latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method, route pattern and status",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Outcome maps an error to a low-cardinality label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveStore records one store operation.
// Params: backend name, operation, start time, and operation error.
func ObserveStore(backend, op string, started time.Time, err error) {
	StoreOperationDuration.WithLabelValues(backend, op, Outcome(err)).Observe(time.Since(started).Seconds())
}

// Handler exposes the default registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
