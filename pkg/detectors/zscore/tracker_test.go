package zscore

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hed1ad/goledger/pkg/detectors"
	"github.com/hed1ad/goledger/pkg/metrics"
	"github.com/hed1ad/goledger/pkg/record"
)

func history() []record.Record {
	return []record.Record{
		{ID: "1", Kind: record.Outflow, Amount: 1200, Category: "rent", Date: "2025-01-01"},
		{ID: "2", Kind: record.Outflow, Amount: 500, Category: "food", Date: "2025-01-08"},
		{ID: "3", Kind: record.Outflow, Amount: 150, Category: "food", Date: "2025-01-10"},
		{ID: "4", Kind: record.Outflow, Amount: 80, Category: "fun", Date: "2025-01-12"},
		{ID: "5", Kind: record.Inflow, Amount: 5000, Category: "salary", Date: "2025-01-15"},
	}
}

func TestScenarioOutlier(t *testing.T) {
	tr := New(WithLogger(zaptest.NewLogger(t)))
	for _, r := range history() {
		tr.Observe(r)
	}

	out := tr.OutflowStats()
	assert.Equal(t, 4, out.Count)
	assert.InDelta(t, 482.5, out.Mean, 1e-9)
	assert.Equal(t, 1, tr.InflowStats().Count)

	s := tr.Detect(record.Record{ID: "6", Kind: record.Outflow, Amount: 50000, Category: "other", Date: "2025-01-20"})
	assert.True(t, s.IsAnomaly)
	assert.Greater(t, s.ZScore, 2.0)
	assert.Equal(t, detectors.SeverityCritical, s.Severity)
	assert.Equal(t, "6", s.Record.ID)
	assert.Contains(t, s.Description, "Unusually high expense: $50000.00")
	assert.Contains(t, s.Description, "above average $482.50")

	assert.Equal(t, 5, tr.OutflowStats().Count, "detect records after checking")
	assert.Equal(t, 1, tr.AnomalyCount())
}

func TestCheckDoesNotObserve(t *testing.T) {
	tr := New()
	for _, r := range history() {
		tr.Observe(r)
	}

	before := tr.OutflowStats()
	tr.Check(record.Record{Kind: record.Outflow, Amount: 600, Category: "food"})
	after := tr.OutflowStats()
	assert.Equal(t, before.Count, after.Count)
	assert.Equal(t, before.Mean, after.Mean)
}

func TestInsufficientHistory(t *testing.T) {
	tr := New()
	tr.ObserveOutflow(10, "food")
	tr.ObserveOutflow(11, "food")

	s := tr.CheckOutflow(1e6)
	assert.False(t, s.IsAnomaly)
	assert.Empty(t, s.Description)
}

func TestNonPositiveIgnored(t *testing.T) {
	tr := New()
	tr.ObserveOutflow(0, "food")
	tr.ObserveOutflow(-5, "food")
	tr.ObserveInflow(-1)
	tr.ObserveDaily(0)

	assert.Zero(t, tr.OutflowStats().Count)
	assert.Zero(t, tr.InflowStats().Count)
	assert.Zero(t, tr.DailyStats().Count)
	assert.Empty(t, tr.Categories())

	for _, v := range []float64{10, 12, 11, 13} {
		tr.ObserveOutflow(v, "food")
	}
	assert.False(t, tr.CheckOutflow(-1000).IsAnomaly)
}

func TestCategoryEscalation(t *testing.T) {
	tr := New()
	// Global series is wide, the coffee series is tight.
	for _, v := range []float64{1000, 20, 2000, 5, 1500} {
		tr.ObserveOutflow(v, "rent")
	}
	for _, v := range []float64{4, 4.5, 5, 4.2} {
		tr.ObserveOutflow(v, "coffee")
	}

	r := record.Record{Kind: record.Outflow, Amount: 40, Category: "coffee"}
	assert.False(t, tr.CheckOutflow(40).IsAnomaly)

	s := tr.Check(r)
	assert.True(t, s.IsAnomaly)
	assert.Contains(t, s.Description, "Unusual coffee expense: $40.00")
}

func TestCheckCategoryUnknown(t *testing.T) {
	tr := New()
	for _, v := range []float64{10, 11, 12, 13} {
		tr.ObserveOutflow(v, "food")
	}

	_, ok := tr.CategoryStats("travel")
	assert.False(t, ok)
	assert.False(t, tr.CheckCategory("travel", 1e6).IsAnomaly)

	food, ok := tr.CategoryStats("food")
	require.True(t, ok)
	assert.Equal(t, 4, food.Count)
	assert.True(t, tr.CheckCategory("food", 1e6).IsAnomaly)
}

func TestSeverity(t *testing.T) {
	tr := New(WithConfig(detectors.Config{Threshold: 2}))
	for _, v := range []float64{8, 12, 8, 12} {
		tr.ObserveOutflow(v, "x")
	}
	// mean 10, sd ~2.309
	tests := []struct {
		name   string
		amount float64
		want   detectors.Severity
	}{
		{name: "normal", amount: 13, want: detectors.SeverityNone},
		{name: "warning", amount: 16, want: detectors.SeverityWarning},
		{name: "critical", amount: 20, want: detectors.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.CheckOutflow(tt.amount).Severity)
		})
	}
}

func TestDailyAndInflow(t *testing.T) {
	tr := New()
	for _, v := range []float64{100, 110, 90, 105} {
		tr.ObserveDaily(v)
		tr.ObserveInflow(v * 10)
	}

	d := tr.CheckDaily(900)
	assert.True(t, d.IsAnomaly)
	assert.Contains(t, d.Description, "Unusual daily spending: $900.00")
	assert.Contains(t, d.Description, "/day)")

	in := tr.CheckInflow(9000)
	assert.True(t, in.IsAnomaly)
	assert.Contains(t, in.Description, "Unusual income")

	assert.Equal(t, 1, tr.AnomalyCount(), "income anomalies are not counted")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tr := New(WithMetrics(m))
	for _, r := range history() {
		tr.Observe(r)
	}
	tr.CheckOutflow(50000)

	n, err := testutil.GatherAndCount(reg, "goledger_anomalies_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDetectStream(t *testing.T) {
	tr := New()
	in := make(chan record.Record)
	out := make(chan detectors.Score, 8)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- tr.DetectStream(ctx, in, out) }()

	records := append(history(), record.Record{ID: "6", Kind: record.Outflow, Amount: 50000, Category: "other"})
	for _, r := range records {
		in <- r
	}
	close(in)

	require.NoError(t, <-done)
	close(out)

	var scores []detectors.Score
	for s := range out {
		scores = append(scores, s)
	}
	require.Len(t, scores, len(records))
	assert.True(t, scores[len(scores)-1].IsAnomaly)
	for _, s := range scores[:len(scores)-1] {
		assert.False(t, s.IsAnomaly)
	}
}

func TestDetectStreamCancel(t *testing.T) {
	tr := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.DetectStream(ctx, make(chan record.Record), make(chan detectors.Score))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReset(t *testing.T) {
	tr := New()
	for _, r := range history() {
		tr.Observe(r)
	}
	tr.Reset()

	assert.Zero(t, tr.OutflowStats().Count)
	assert.Empty(t, tr.Categories())
	assert.Zero(t, tr.AnomalyCount())
}
