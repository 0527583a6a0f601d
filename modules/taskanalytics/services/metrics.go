package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	schedulerTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpulse",
		Subsystem: "scheduler",
		Name:      "fetches_total",
		Help:      "Total number of duration fetches broken down by result.",
	}, []string{"result"})

	schedulerVisible = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskpulse",
		Subsystem: "scheduler",
		Name:      "visible_tasks",
		Help:      "Number of tasks currently visible to the scheduler.",
	})

	schedulerPolling = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskpulse",
		Subsystem: "scheduler",
		Name:      "polling",
		Help:      "1 while the scheduler is polling, 0 while idle.",
	})

	engineRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskpulse",
		Subsystem: "engine",
		Name:      "hierarchy_rebuilds_total",
		Help:      "Total number of hierarchy rebuilds.",
	})

	timerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskpulse",
		Subsystem: "timer",
		Name:      "rejections_total",
		Help:      "Total number of timer mutations rejected broken down by reason.",
	}, []string{"reason"})
)

func recordFetch(result string) {
	if result == "" {
		result = "other"
	}
	schedulerTicks.WithLabelValues(result).Inc()
}

func recordSchedulerState(s SchedulerState, visible int) {
	schedulerVisible.Set(float64(visible))
	if s == StatePolling {
		schedulerPolling.Set(1)
		return
	}
	schedulerPolling.Set(0)
}

func recordTimerRejection(reason string) {
	timerRejections.WithLabelValues(reason).Inc()
}
