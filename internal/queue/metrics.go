package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace, metricsSubsystem = "telco", "queue"

// Queue metrics, labelled by task kind. The gauges are refreshed by the
// admin stats endpoint and by dead-lettering; counters and histograms by the
// worker.
var (
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Subsystem: metricsSubsystem,
		Name: "depth",
		Help: "Tasks waiting in the ready set.",
	}, []string{"kind"})

	QueueDLQSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Subsystem: metricsSubsystem,
		Name: "dlq_size",
		Help: "Dead-lettered tasks awaiting replay.",
	}, []string{"kind"})

	QueueProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: metricsSubsystem,
		Name: "processed_total",
		Help: "Deliveries by outcome: success, retry or dead.",
	}, []string{"kind", "status"})

	QueueHandleSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: metricsSubsystem,
		Name:    "handle_seconds",
		Help:    "Handler run time per delivery.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})

	QueueClaimLagSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: metricsSubsystem,
		Name:    "claim_lag_seconds",
		Help:    "Time between a task becoming due and a worker claiming it.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(QueueDepth, QueueDLQSize, QueueProcessedTotal, QueueHandleSeconds, QueueClaimLagSeconds)
}

func queueLabel(kind string) string {
	if kind == "" {
		return "all"
	}
	return kind
}

func observeProcessed(kind, status string) {
	QueueProcessedTotal.WithLabelValues(queueLabel(kind), status).Inc()
}

func observeHandled(kind string, started time.Time) {
	QueueHandleSeconds.WithLabelValues(queueLabel(kind)).Observe(time.Since(started).Seconds())
}

func observeClaimed(kind string, availableAt int64, claimed time.Time) {
	lag := max(claimed.Sub(time.Unix(0, availableAt)), 0)
	QueueClaimLagSeconds.WithLabelValues(queueLabel(kind)).Observe(lag.Seconds())
}
