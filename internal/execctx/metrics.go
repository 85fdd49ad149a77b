package execctx

import "github.com/prometheus/client_golang/prometheus"

var (
	contextState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "context",
			Name:      "state",
			Help:      "Execution context state (0=stopped 1=starting 2=ready 3=stopping)",
		},
	)

	variantSwapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "context",
			Name:      "variant_swaps_total",
			Help:      "Total variant swap sequences, by target variant",
		},
		[]string{"variant"},
	)

	startFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "context",
			Name:      "start_failures_total",
			Help:      "Total subprocess start attempts that failed",
		},
	)

	proxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "context",
			Name:      "proxy_requests_total",
			Help:      "Total requests proxied to the subprocess, by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(contextState, variantSwapsTotal, startFailuresTotal, proxyRequestsTotal)
}
