package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// WidgetResultsTotal counts admin queue widget loads by outcome.
	WidgetResultsTotal *prometheus.CounterVec
	// WidgetLatency records widget load latency in milliseconds.
	WidgetLatency *prometheus.HistogramVec
	// EmailFunctionTotal counts email edge function invocations by type and outcome.
	EmailFunctionTotal *prometheus.CounterVec
	// AuditDroppedTotal counts best-effort audit entries that could not be written.
	AuditDroppedTotal prometheus.Counter
	// CampaignSendsTotal counts campaign recipient deliveries by outcome.
	CampaignSendsTotal *prometheus.CounterVec
	// DraftOrdersTotal counts draft order lifecycle events.
	DraftOrdersTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		WidgetResultsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_widget_results_total",
			Help:      "Count of admin queue widget loads by outcome.",
		}, []string{"widget", "result"}))
		WidgetLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admin_widget_duration_ms",
			Help:      "Latency for admin queue widget loads in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"widget"}))
		EmailFunctionTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_function_calls_total",
			Help:      "Count of email edge function invocations by type and outcome.",
		}, []string{"type", "result"}))
		AuditDroppedTotal = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Number of best-effort audit entries that were not persisted.",
		}))
		CampaignSendsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaign_sends_total",
			Help:      "Count of campaign recipient deliveries by outcome.",
		}, []string{"result"}))
		DraftOrdersTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_orders_total",
			Help:      "Count of draft order events.",
		}, []string{"event"}))
	})
}

// ObserveWidget records a widget load outcome. It is a no-op until the domain
// metrics are registered.
func ObserveWidget(widget, result string, d time.Duration) {
	if WidgetResultsTotal != nil {
		WidgetResultsTotal.WithLabelValues(widget, result).Inc()
	}
	if WidgetLatency != nil {
		WidgetLatency.WithLabelValues(widget).Observe(DurationMillis(d))
	}
}

// ObserveEmail records an email function call outcome.
func ObserveEmail(kind, result string) {
	if EmailFunctionTotal != nil {
		EmailFunctionTotal.WithLabelValues(kind, result).Inc()
	}
}

// ObserveAuditDrop records a dropped best-effort audit entry.
func ObserveAuditDrop() {
	if AuditDroppedTotal != nil {
		AuditDroppedTotal.Inc()
	}
}

// ObserveCampaignSend records a campaign delivery outcome.
func ObserveCampaignSend(result string) {
	if CampaignSendsTotal != nil {
		CampaignSendsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveDraftOrder records a draft order event.
func ObserveDraftOrder(event string) {
	if DraftOrdersTotal != nil {
		DraftOrdersTotal.WithLabelValues(event).Inc()
	}
}
