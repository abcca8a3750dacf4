// Package observability provides Prometheus metrics, health checks, and
// logging helpers for the webhook engine.
//
// Uses github.com/prometheus/client_golang - the official Prometheus client.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine. Registered
// automatically via promauto.
//
// Key metrics for monitoring:
//   - events_routed_total: inbound domain-event rate
//   - deliveries_total{status}: delivery outcomes
//   - subscriptions_disabled_total: circuit breaker trips (alert on this)
//   - delivery_duration_seconds: destination latency distribution
type Metrics struct {
	EventsRouted        prometheus.Counter
	EventsIgnored       prometheus.Counter
	DeliveriesScheduled prometheus.Counter
	Deliveries          *prometheus.CounterVec
	DeliveryDuration    prometheus.Histogram

	SubscriptionsDisabled prometheus.Counter
	RetentionDeleted      prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics. The namespace
// prefixes all metric names (e.g. "quill_webhooks_deliveries_total").
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		EventsRouted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_routed_total",
			Help:      "Total number of domain events routed against subscriptions",
		}),
		EventsIgnored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ignored_total",
			Help:      "Total number of domain events ignored for lacking a team scope",
		}),
		DeliveriesScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_scheduled_total",
			Help:      "Total number of delivery tasks scheduled by the router",
		}),
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of finalized deliveries by status",
		}, []string{"status"}),
		DeliveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Duration of webhook POSTs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		SubscriptionsDisabled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_disabled_total",
			Help:      "Total number of subscriptions disabled by the circuit breaker",
		}),
		RetentionDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Total number of delivery rows removed by the retention sweeper",
		}),
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method and path",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}
