package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("recurring:tick").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("recurring:tick").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("recurring:tick", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("recurring:tick", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("recurring:tick")))
}

func TestLedgerCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddRecurringOutcomes(3, 1, 0)
	m.AddEventRetries(2, 0)
	m.SetIntegrityMismatches(4)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.recurring.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recurring.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("processed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.mismatches))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.AddRecurringOutcomes(1, 1, 1)
	m.SetIntegrityMismatches(1)
	assert.NoError(t, m.Track("x").End(nil))
}
