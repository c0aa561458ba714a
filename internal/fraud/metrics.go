package fraud

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paymentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraud_payments_processed_total",
		Help: "Payments reviewed by the fraud pipeline",
	}, []string{"status"})

	paymentsApproved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraud_payments_approved_total",
		Help: "Payments auto-approved",
	})

	paymentsFlagged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraud_payments_flagged_total",
		Help: "Payments flagged for manual review",
	}, []string{"reason"})

	dlqMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraud_dlq_messages_total",
		Help: "Messages sent to the dead letter queue",
	}, []string{"failure_reason"})

	retryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraud_retry_attempts_total",
		Help: "In-process retry attempts",
	})

	retryingMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fraud_retrying_messages",
		Help: "Messages currently held for in-process retry",
	})

	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fraud_processing_duration_seconds",
		Help:    "Time spent reviewing one message",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
	})
)
