package promutil

import "github.com/prometheus/client_golang/prometheus"

// Factory produces prometheus metrics that are registered automatically,
// similar to promauto. The node keeps a process-level Registry; the worker
// pools and every job context get their own Factory so that the collectors
// of a destroyed job can be unregistered in one call.
type Factory interface {
	// NewCounter works like the function of the same name in the prometheus
	// package, but it automatically registers the Counter with the Factory's
	// Registry. Panic if it can't register successfully.
	NewCounter(opts prometheus.CounterOpts) prometheus.Counter

	// NewCounterVec works like the function of the same name in the
	// prometheus package, but it automatically registers the CounterVec.
	NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec

	// NewGauge works like the function of the same name in the prometheus
	// package, but it automatically registers the Gauge.
	NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge

	// NewGaugeVec works like the function of the same name in the prometheus
	// package, but it automatically registers the GaugeVec.
	NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec

	// NewHistogramVec works like the function of the same name in the
	// prometheus package, but it automatically registers the HistogramVec.
	NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec
}
