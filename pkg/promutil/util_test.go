package promutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewFactory4Job(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	f := NewFactory4Job(r, "job0", "ctx0")
	require.Equal(t, &wrappingFactory{
		r:      r,
		owner:  "ctx0",
		prefix: jobPrefix,
		constLabels: prometheus.Labels{
			constLabelJobKey:     "job0",
			constLabelContextKey: "ctx0",
		},
	}, f)
}

func TestNewFactory4Framework(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.Equal(t, &wrappingFactory{
		r:      r,
		owner:  frameworkOwner,
		prefix: frameworkPrefix,
	}, NewFactory4Framework(r))
}

func TestHTTPHandlerForMetric(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	NewFactory4Framework(r).NewGauge(prometheus.GaugeOpts{
		Subsystem: "service",
		Name:      "jobs",
	}).Set(2)

	srv := httptest.NewServer(HTTPHandlerForMetric(r))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "dataflow_service_jobs 2")
}

func TestGlobalRegistry(t *testing.T) {
	t.Parallel()

	require.Same(t, globalMetricRegistry, GlobalRegistry())
	require.Equal(t, 2, GlobalRegistry().CollectorCount(systemOwner))
}
