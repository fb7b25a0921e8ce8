package workerpool

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hanfei1991/dfnode/pkg/promutil"
)

const (
	failureReasonError = "error"
	failureReasonPanic = "panic"
)

type metrics struct {
	tasks        *prometheus.GaugeVec
	taskFailures *prometheus.CounterVec
	pollDuration *prometheus.HistogramVec
}

func newMetrics(f promutil.Factory) *metrics {
	tasksOpts := prometheus.GaugeOpts{
		Subsystem: "pool",
		Name:      "tasks",
		Help:      "Number of tasks owned by the pool.",
	}
	failureOpts := prometheus.CounterOpts{
		Subsystem: "pool",
		Name:      "task_failures_total",
		Help:      "Number of tasks removed from the pool because of an error or a panic.",
	}
	pollOpts := prometheus.HistogramOpts{
		Subsystem: "pool",
		Name:      "poll_duration_seconds",
		Help:      "Duration of a single task poll.",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
	}

	if f == nil {
		// unregistered collectors keep the pool usable without a registry
		return &metrics{
			tasks:        prometheus.NewGaugeVec(tasksOpts, []string{"pool"}),
			taskFailures: prometheus.NewCounterVec(failureOpts, []string{"pool", "reason"}),
			pollDuration: prometheus.NewHistogramVec(pollOpts, []string{"pool"}),
		}
	}
	return &metrics{
		tasks:        f.NewGaugeVec(tasksOpts, []string{"pool"}),
		taskFailures: f.NewCounterVec(failureOpts, []string{"pool", "reason"}),
		pollDuration: f.NewHistogramVec(pollOpts, []string{"pool"}),
	}
}
