package taskapi

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	limited  prometheus.Counter
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskpulse",
			Subsystem: "taskapi",
			Name:      "requests_total",
			Help:      "Total number of task service calls broken down by operation and result.",
		}, []string{"op", "result"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskpulse",
			Subsystem: "taskapi",
			Name:      "latency_seconds",
			Help:      "Latency distribution for task service calls.",
			Buckets: []float64{
				0.005, 0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10,
			},
		}, []string{"op", "result"}),
		limited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "taskpulse",
			Subsystem: "taskapi",
			Name:      "rate_limited_total",
			Help:      "Total number of task service calls rejected by the outbound rate limit.",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
