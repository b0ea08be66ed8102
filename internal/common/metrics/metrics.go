// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_payments_created_total",
			Help: "Total number of checkout requests built",
		},
		[]string{"period"},
	)

	CallbacksVerified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_callbacks_verified_total",
			Help: "Total number of gateway callbacks by verification result",
		},
		[]string{"result"},
	)

	TradeQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_trade_queries_total",
			Help: "Total number of trade status queries by outcome",
		},
		[]string{"outcome"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_notifications_sent_total",
			Help: "Total number of payment-link emails by delivery result",
		},
		[]string{"result"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "billing_batch_duration_seconds",
			Help: "Duration of batch dispatcher runs in seconds",
		},
		[]string{"operation"},
	)

	SheetOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_sheet_operations_total",
			Help: "Total number of record store operations by type and result",
		},
		[]string{"operation", "result"},
	)
)
