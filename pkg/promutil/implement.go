package promutil

import (
	"github.com/prometheus/client_golang/prometheus"
)

type wrappingFactory struct {
	r *Registry
	// owner identifies the component (framework, pool, job) the factory
	// belongs to. All collectors of an owner are unregistered together.
	owner string
	// prefix is prepended to the namespace, e.g. $prefix_$namespace_$name
	prefix string
	// constLabels are added to every metric produced by the factory
	constLabels prometheus.Labels
}

// NewCounter implements Factory.NewCounter. Thread-safe.
func (f *wrappingFactory) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace, opts.ConstLabels = wrapOpts(f.prefix, f.constLabels, opts.Namespace, opts.ConstLabels)
	c := prometheus.NewCounter(opts)
	f.r.MustRegister(f.owner, c)
	return c
}

// NewCounterVec implements Factory.NewCounterVec. Thread-safe.
func (f *wrappingFactory) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	opts.Namespace, opts.ConstLabels = wrapOpts(f.prefix, f.constLabels, opts.Namespace, opts.ConstLabels)
	c := prometheus.NewCounterVec(opts, labelNames)
	f.r.MustRegister(f.owner, c)
	return c
}

// NewGauge implements Factory.NewGauge. Thread-safe.
func (f *wrappingFactory) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace, opts.ConstLabels = wrapOpts(f.prefix, f.constLabels, opts.Namespace, opts.ConstLabels)
	c := prometheus.NewGauge(opts)
	f.r.MustRegister(f.owner, c)
	return c
}

// NewGaugeVec implements Factory.NewGaugeVec. Thread-safe.
func (f *wrappingFactory) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	opts.Namespace, opts.ConstLabels = wrapOpts(f.prefix, f.constLabels, opts.Namespace, opts.ConstLabels)
	c := prometheus.NewGaugeVec(opts, labelNames)
	f.r.MustRegister(f.owner, c)
	return c
}

// NewHistogramVec implements Factory.NewHistogramVec. Thread-safe.
func (f *wrappingFactory) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	opts.Namespace, opts.ConstLabels = wrapOpts(f.prefix, f.constLabels, opts.Namespace, opts.ConstLabels)
	c := prometheus.NewHistogramVec(opts, labelNames)
	f.r.MustRegister(f.owner, c)
	return c
}

func wrapOpts(
	prefix string,
	constLabels prometheus.Labels,
	namespace string,
	labels prometheus.Labels,
) (string, prometheus.Labels) {
	if prefix != "" {
		if namespace == "" {
			namespace = prefix
		} else {
			namespace = prefix + "_" + namespace
		}
	}

	if len(constLabels) == 0 {
		return namespace, labels
	}
	merged := make(prometheus.Labels, len(labels)+len(constLabels))
	for name, value := range labels {
		merged[name] = value
	}
	for name, value := range constLabels {
		if _, exists := merged[name]; exists {
			panic("duplicate label name " + name)
		}
		merged[name] = value
	}
	return namespace, merged
}
