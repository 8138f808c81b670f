package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Delivery attempts partitioned by channel and outcome (sent, retry, failed)
	reminderDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_deliveries_total",
			Help: "Total number of reminder delivery attempts",
		},
		[]string{"channel", "outcome"},
	)

	sweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of scheduled sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	sweepRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_records_total",
			Help: "Records handled by scheduled sweeps",
		},
		[]string{"kind", "outcome"},
	)
)

func observeDelivery(channel string, result DeliveryResult, status string) {
	outcome := "sent"
	if !result.Success {
		outcome = "retry"
		if status == "FAILED" {
			outcome = "failed"
		}
	}
	reminderDeliveries.WithLabelValues(channel, outcome).Inc()
}
