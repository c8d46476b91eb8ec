package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "browserd",
			Subsystem: "scheduler",
			Name:      "turns_total",
			Help:      "Turns resolved, by terminal outcome",
		},
		[]string{"outcome"},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "browserd",
			Subsystem: "scheduler",
			Name:      "retries_total",
			Help:      "Turn re-drives after classified failures",
		},
	)

	switchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "browserd",
			Subsystem: "scheduler",
			Name:      "model_switches_total",
			Help:      "Model switches performed in the browser",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "browserd",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Requests waiting for the browser slot",
		},
	)
)

func init() {
	prometheus.MustRegister(turnsTotal, retriesTotal, switchesTotal, queueDepth)
}
