package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Op("rbtree", "insert")
		m.Rotation()
		m.Slide()
		m.Anomaly("outflow")
		m.SortPath("heapsort", 1)
		m.SetSize("skiplist", 3)
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Op("rbtree", "insert")
	m.Op("rbtree", "insert")
	m.Op("skiplist", "search")
	m.Rotation()
	m.Slide()
	m.Slide()
	m.Anomaly("outflow")
	m.SortPath("insertion", 3)
	m.SortPath("heapsort", 0)
	m.SetSize("priority", 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("rbtree", "insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("skiplist", "search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rotations))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.slides))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.anomalies.WithLabelValues("outflow")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sortPaths.WithLabelValues("insertion")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.size.WithLabelValues("priority")))
}
