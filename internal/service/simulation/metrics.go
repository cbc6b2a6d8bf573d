package simulation

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queueMetricsOnce sync.Once
	queueDepth       prometheus.Gauge
	queueActive      prometheus.Gauge
)

func initQueueMetrics() {
	queueMetricsOnce.Do(func() {
		queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "benchmark",
			Subsystem: "queue",
			Name:      "pending_runs",
			Help:      "Number of runs waiting for execution",
		})
		queueActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "benchmark",
			Subsystem: "queue",
			Name:      "active_runs",
			Help:      "Whether a run is currently executing (0 or 1)",
		})

		for _, collector := range []prometheus.Collector{queueDepth, queueActive} {
			if err := prometheus.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
						if collector == queueDepth {
							queueDepth = existing
						} else {
							queueActive = existing
						}
					}
				}
			}
		}
	})
}
