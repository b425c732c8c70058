// Package metrics exposes Prometheus collectors for the checkout flow.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all checkout related collectors.
type Metrics struct {
	CheckoutSessionsCreated *prometheus.CounterVec
	CheckoutSessionsFailed  *prometheus.CounterVec
	WebhookEvents           *prometheus.CounterVec
	PurchasesFulfilled      *prometheus.CounterVec
	PurchasesExpired        prometheus.Counter
	FulfillmentLatency      prometheus.Histogram
	JobsProcessed           *prometheus.CounterVec
}

// DefaultMetrics is registered with the default Prometheus registry.
var DefaultMetrics = NewMetrics("coursefox", prometheus.DefaultRegisterer)

// NewMetrics creates collectors under namespace and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CheckoutSessionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_created_total",
			Help:      "Checkout sessions handed off to Stripe",
		}, []string{"kind"}),
		CheckoutSessionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_failed_total",
			Help:      "Checkout session requests that could not be started",
		}, []string{"kind"}),
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Stripe webhook deliveries by event type and outcome",
		}, []string{"type", "outcome"}),
		PurchasesFulfilled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_fulfilled_total",
			Help:      "Purchase sessions marked completed",
		}, []string{"kind"}),
		PurchasesExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_expired_total",
			Help:      "Purchase sessions expired by reconciliation",
		}),
		FulfillmentLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fulfillment_latency_seconds",
			Help:      "Time between purchase session creation and fulfillment",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900, 3600},
		}),
		JobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Background jobs by type and outcome",
		}, []string{"type", "outcome"}),
	}
}

// Handler serves the default registry on a fiber route.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
