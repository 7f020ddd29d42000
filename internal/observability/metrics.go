// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Sale lifecycle metrics
	SalesCreated  prometheus.Counter
	SalesLaunched prometheus.Counter
	SalesFailed   prometheus.Counter

	// Trading metrics
	TradesExecuted  *prometheus.CounterVec
	TradesRejected  *prometheus.CounterVec
	RefundsClaimed  prometheus.Counter
	QuoteRequests   *prometheus.CounterVec
	TradeLatency    *prometheus.HistogramVec

	// Feed metrics
	FeedSubscribers prometheus.Gauge
	FeedEventsSent  prometheus.Counter
	FeedSendErrors  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	ActiveSales   prometheus.Gauge
	UptimeSeconds prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_launchpad"
	}

	return &Metrics{
		// Sale lifecycle metrics
		SalesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "created_total",
			Help:      "Total number of sales created",
		}),
		SalesLaunched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "launched_total",
			Help:      "Total number of sales that reached LAUNCHED",
		}),
		SalesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "failed_total",
			Help:      "Total number of sales that reached FAILED",
		}),

		// Trading metrics
		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_executed_total",
			Help:      "Total number of executed trades by side",
		}, []string{"side"}),
		TradesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_rejected_total",
			Help:      "Total number of rejected trades by reason",
		}, []string{"side", "reason"}),
		RefundsClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "refunds_claimed_total",
			Help:      "Total number of refund claims paid out",
		}),
		QuoteRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "quote_requests_total",
			Help:      "Total number of read-only quote requests by side",
		}, []string{"side"}),
		TradeLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trade_latency_seconds",
			Help:      "Trade execution latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"side"}),

		// Feed metrics
		FeedSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Current number of websocket feed subscribers",
		}),
		FeedEventsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_sent_total",
			Help:      "Total number of events broadcast to subscribers",
		}),
		FeedSendErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "send_errors_total",
			Help:      "Total number of failed subscriber sends",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		ActiveSales: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "active_sales",
			Help:      "Current number of sales in ACTIVE status",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTradeExecuted increments the executed trades counter.
func RecordTradeExecuted(side string) {
	DefaultMetrics.TradesExecuted.WithLabelValues(side).Inc()
}

// RecordTradeRejected increments the rejected trades counter.
func RecordTradeRejected(side, reason string) {
	DefaultMetrics.TradesRejected.WithLabelValues(side, reason).Inc()
}

// RecordRefundClaimed increments the refund claims counter.
func RecordRefundClaimed() {
	DefaultMetrics.RefundsClaimed.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
