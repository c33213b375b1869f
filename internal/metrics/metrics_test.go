package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maynagashev/formdef/internal/metrics"
)

func TestObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveOperation("form", "create_version", "ok", 5*time.Millisecond)
	m.ObserveOperation("form", "create_version", "ok", 7*time.Millisecond)
	m.ObserveOperation("form", "create_version", "conflict", time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("form", "create_version", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("form", "create_version", "conflict")), 0)

	count, err := testutil.GatherAndCount(reg, "formdef_versioning_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestObserveHTTP(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveHTTP("GET", "/api/forms/{id}", "200", time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/forms/{id}", "200")), 0)
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.ObserveOperation("form", "get_version", "ok", time.Millisecond)
		m.ObserveHTTP("GET", "/", "200", time.Millisecond)
	})
}

func TestNew_WithoutRegistry(t *testing.T) {
	m := metrics.New(nil)
	require.NotNil(t, m)
	m.ObserveOperation("component", "list_versions", "ok", 0)
}
