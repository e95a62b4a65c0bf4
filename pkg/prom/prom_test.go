package prom

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainMetrics(t *testing.T) {
	require.NoError(t, Create("test-host", "test", "reconciler"))

	IncMatch("worker")
	IncMatch("worker")
	IncMatch("lookup")
	IncMatchConflict("lookup")
	AddRunErrors(3)
	AddRunErrors(0)
	AddIngestedRows("new", 2)
	ObserveRunDuration(0.25)

	matches := MetricCollectionCounterVec[SystemReconcile+MetricMatchesTotal]
	assert.Equal(t, float64(2), testutil.ToFloat64(matches.WithLabelValues("worker")))
	assert.Equal(t, float64(1), testutil.ToFloat64(matches.WithLabelValues("lookup")))

	conflicts := MetricCollectionCounterVec[SystemReconcile+MetricMatchConflicts]
	assert.Equal(t, float64(1), testutil.ToFloat64(conflicts.WithLabelValues("lookup")))

	assert.Equal(t, float64(3), testutil.ToFloat64(MetricCollectionCounters[SystemReconcile+MetricRunErrors]))

	rows := MetricCollectionCounterVec[SystemIngest+MetricIngestedRows]
	assert.Equal(t, float64(2), testutil.ToFloat64(rows.WithLabelValues("new")))

	ObserveBankRequest("VCB", "200", 0.1)
	assert.Equal(t, 1, testutil.CollectAndCount(MetricCollectionHistogramVec[SystemBankAPI+MetricBankRequestLatency]))

	assert.Error(t, Create("test-host", "test", "reconciler"), "duplicate registration")
}
