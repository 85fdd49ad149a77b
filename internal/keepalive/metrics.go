package keepalive

import "github.com/prometheus/client_golang/prometheus"

var idleStopsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "keepalive",
		Name:      "idle_stops_total",
		Help:      "Total subprocess stops triggered by the idle timer",
	},
)

func init() {
	prometheus.MustRegister(idleStopsTotal)
}
