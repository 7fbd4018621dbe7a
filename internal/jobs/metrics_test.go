package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("close").End(nil))
	err := errors.New("boom")
	require.ErrorIs(t, m.Track("close").End(err), err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("close", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("close", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("close")))
}

func TestAddArchived(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AddArchived("in", 2, 5)
	m.AddArchived("in", 0, 1)
	m.ObserveClose("scheduler", nil)

	require.Equal(t, 2.0, testutil.ToFloat64(m.archived.WithLabelValues("in", "header")))
	require.Equal(t, 6.0, testutil.ToFloat64(m.archived.WithLabelValues("in", "item")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.closes.WithLabelValues("scheduler", "success")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddArchived("out", 1, 1)
	m.ObserveClose("manual", nil)
	require.NoError(t, m.Track("x").End(nil))
}
