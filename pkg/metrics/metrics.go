// Package metrics exports engine instrumentation as Prometheus collectors.
//
// Every method is safe on a nil *Metrics, so engines can be built without
// instrumentation and still call into it unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors shared by all engines of one process.
type Metrics struct {
	operations *prometheus.CounterVec
	rotations  prometheus.Counter
	slides     prometheus.Counter
	anomalies  *prometheus.CounterVec
	sortPaths  *prometheus.CounterVec
	size       *prometheus.GaugeVec
}

// New registers the goledger collectors with reg.
// A nil reg falls back to prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goledger_operations_total",
				Help: "Engine operations by engine and operation name",
			},
			[]string{"engine", "op"},
		),
		rotations: f.NewCounter(prometheus.CounterOpts{
			Name: "goledger_rbtree_rotations_total",
			Help: "Rotations performed while rebalancing the date index",
		}),
		slides: f.NewCounter(prometheus.CounterOpts{
			Name: "goledger_window_slides_total",
			Help: "Oldest-day evictions performed by sliding windows",
		}),
		anomalies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goledger_anomalies_total",
				Help: "Anomalies flagged by series",
			},
			[]string{"series"},
		),
		sortPaths: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goledger_sort_paths_total",
				Help: "Introsort sub-sorts by strategy",
			},
			[]string{"path"},
		),
		size: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "goledger_engine_size",
				Help: "Number of live entries held by an engine",
			},
			[]string{"engine"},
		),
	}
}

// Op counts one operation on engine.
func (m *Metrics) Op(engine, op string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(engine, op).Inc()
}

// Rotation counts one tree rotation.
func (m *Metrics) Rotation() {
	if m == nil {
		return
	}
	m.rotations.Inc()
}

// Slide counts one window eviction.
func (m *Metrics) Slide() {
	if m == nil {
		return
	}
	m.slides.Inc()
}

// Anomaly counts one anomaly in series.
func (m *Metrics) Anomaly(series string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(series).Inc()
}

// SortPath counts n sub-sorts that took path.
func (m *Metrics) SortPath(path string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sortPaths.WithLabelValues(path).Add(float64(n))
}

// SetSize records the live size of engine.
func (m *Metrics) SetSize(engine string, n int) {
	if m == nil {
		return
	}
	m.size.WithLabelValues(engine).Set(float64(n))
}
