package resilience

import "github.com/prometheus/client_golang/prometheus"

// Outbound call metrics, labelled by the dependency name given to the breaker.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "telco",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Breaker position per target (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})

	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telco",
		Subsystem: "breaker",
		Name:      "transition_total",
		Help:      "Breaker state changes per target.",
	}, []string{"target", "from", "to"})

	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telco",
		Subsystem: "breaker",
		Name:      "open_total",
		Help:      "Times each breaker tripped open.",
	}, []string{"target"})

	// OutboundAttempts counts every try HTTPClient makes, including the ones
	// the breaker refused.
	OutboundAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telco",
		Subsystem: "outbound",
		Name:      "attempts_total",
		Help:      "Outbound HTTP attempts by target and outcome (ok, error, retry_status, rejected).",
	}, []string{"target", "outcome"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, OutboundAttempts)
}
