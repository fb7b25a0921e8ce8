package workerpool

import (
	"time"

	"github.com/hanfei1991/dfnode/pkg/promutil"
)

// Factory produces pools sharing a shutdown timeout and one set of
// metrics, labelled by pool name.
type Factory struct {
	shutdownTimeout time.Duration
	metrics         *metrics
	opts            []Option
}

// NewFactory creates a Factory. metricFactory may be nil, in which case the
// pools' metrics are not registered anywhere.
func NewFactory(shutdownTimeout time.Duration, metricFactory promutil.Factory, opts ...Option) *Factory {
	return &Factory{
		shutdownTimeout: shutdownTimeout,
		metrics:         newMetrics(metricFactory),
		opts:            opts,
	}
}

// NewPool creates and starts a pool with the given name and size.
func (f *Factory) NewPool(name string, workerCount int) *Pool {
	return newPool(Config{
		Name:            name,
		WorkerCount:     workerCount,
		ShutdownTimeout: f.shutdownTimeout,
	}, f.metrics, f.opts...)
}
