package promutil

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

// NOTICE: we don't use prometheus.DefaultRegisterer so that only wrapped
// metrics end up on the node's metric endpoint.
var globalMetricRegistry = NewRegistry()

func init() {
	globalMetricRegistry.MustRegister(systemOwner, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	globalMetricRegistry.MustRegister(systemOwner, collectors.NewGoCollector())
}

// Registry is used for registering metrics of different owners.
type Registry struct {
	mu sync.Mutex
	*prometheus.Registry

	// collectorsByOwner is used to drop all collectors of an owner,
	// e.g. when a job context is destroyed.
	collectorsByOwner map[string][]prometheus.Collector
}

// NewRegistry creates a Registry.
func NewRegistry() *Registry {
	return &Registry{
		Registry:          prometheus.NewRegistry(),
		collectorsByOwner: make(map[string][]prometheus.Collector),
	}
}

// GlobalRegistry returns the process-level registry.
func GlobalRegistry() *Registry {
	return globalMetricRegistry
}

// MustRegister registers the provided Collector of the specified owner.
func (r *Registry) MustRegister(owner string, c prometheus.Collector) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Registry.MustRegister(c)
	r.collectorsByOwner[owner] = append(r.collectorsByOwner[owner], c)
}

// Unregister unregisters all Collectors of the specified owner.
func (r *Registry) Unregister(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.collectorsByOwner[owner] {
		r.Registry.Unregister(c)
	}
	delete(r.collectorsByOwner, owner)
}

// CollectorCount returns the number of collectors registered by owner.
func (r *Registry) CollectorCount(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.collectorsByOwner[owner])
}

// Gather implements prometheus.Gatherer.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.Registry.Gather()
}
