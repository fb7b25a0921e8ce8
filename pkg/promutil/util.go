package promutil

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	systemOwner    = "system"
	frameworkOwner = "dataflow-framework"

	frameworkPrefix = "dataflow"
	jobPrefix       = "dataflow_job"

	// constLabelJobKey is used to tell the metrics of different jobs apart
	constLabelJobKey = "job"
	// constLabelContextKey tells apart two contexts created under the same job name
	constLabelContextKey = "context_id"
)

// HTTPHandlerForMetric returns the http.Handler serving the given registry.
func HTTPHandlerForMetric(r *Registry) http.Handler {
	return promhttp.HandlerFor(r, promhttp.HandlerOpts{})
}

// NewFactory4Framework returns a Factory for node level components such as
// the network, acceptor and processing pools.
func NewFactory4Framework(r *Registry) Factory {
	return &wrappingFactory{
		r:      r,
		owner:  frameworkOwner,
		prefix: frameworkPrefix,
	}
}

// NewFactory4Job returns a Factory whose metrics carry the job name and are
// owned by the job context with the given id.
func NewFactory4Job(r *Registry, jobName, contextID string) Factory {
	return &wrappingFactory{
		r:      r,
		owner:  contextID,
		prefix: jobPrefix,
		constLabels: prometheus.Labels{
			constLabelJobKey:     jobName,
			constLabelContextKey: contextID,
		},
	}
}
