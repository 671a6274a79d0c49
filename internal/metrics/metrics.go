// Package metrics holds the prometheus collectors shared by the engine, the
// TCP gateway and the trade publisher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "matchbook"

// Order admission outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "orders_total",
			Help:      "Orders submitted to the book by type and admission outcome",
		},
		[]string{"symbol", "type", "outcome"},
	)

	CancelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cancels_total",
			Help:      "Cancel requests processed",
		},
		[]string{"symbol"},
	)

	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_total",
			Help:      "Trades produced by the matching loop",
		},
		[]string{"symbol"},
	)

	TradedQuantityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "traded_quantity_total",
			Help:      "Quantity matched by the matching loop",
		},
		[]string{"symbol"},
	)

	RestingOrders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "resting_orders",
			Help:      "Orders currently resting in the book",
		},
		[]string{"symbol"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "command_duration_seconds",
			Help:      "Time spent applying a command to the book",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
		[]string{"symbol", "command"},
	)

	GatewaySessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "sessions",
			Help:      "Connected client sessions",
		},
	)

	GatewayMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "messages_total",
			Help:      "Client messages received by type",
		},
		[]string{"type"},
	)

	ReportErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "report_errors_total",
			Help:      "Trade reports a reporter failed to deliver",
		},
		[]string{"reporter"},
	)

	PublishedMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "messages_total",
			Help:      "Execution reports written to the trade topic",
		},
		[]string{"topic"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
