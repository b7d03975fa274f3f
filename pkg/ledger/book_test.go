package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hed1ad/goledger/pkg/config"
	"github.com/hed1ad/goledger/pkg/metrics"
	"github.com/hed1ad/goledger/pkg/priority"
	"github.com/hed1ad/goledger/pkg/record"
)

func scenario() []record.Record {
	return []record.Record{
		{ID: "r1", Kind: record.Outflow, Amount: 1200, Category: "rent", Date: "2025-01-01"},
		{ID: "r2", Kind: record.Outflow, Amount: 500, Category: "food", Date: "2025-01-08"},
		{ID: "r3", Kind: record.Outflow, Amount: 150, Category: "food", Date: "2025-01-10"},
		{ID: "r4", Kind: record.Outflow, Amount: 80, Category: "fun", Date: "2025-01-12"},
		{ID: "r5", Kind: record.Inflow, Amount: 5000, Category: "salary", Date: "2025-01-15"},
	}
}

func newBook(t *testing.T) *Book {
	t.Helper()
	cfg := config.Default()
	cfg.WindowDays = 30
	cfg.Budgets = map[string]float64{"food": 500, "rent": 1000, "fun": 100}

	b, err := New(cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.NoError(t, b.AddAll(scenario()))
	return b
}

func TestScenario(t *testing.T) {
	b := newBook(t)
	require.NoError(t, b.Validate())

	jan := b.Range("2025-01-01", "2025-01-31")
	require.Len(t, jan, 5)
	for i := 1; i < len(jan); i++ {
		assert.LessOrEqual(t, jan[i-1].Date, jan[i].Date)
	}
	assert.Equal(t, jan, b.Month("2025-01"))

	top := b.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, 1200.0, top[0].Amount)
	assert.Equal(t, 500.0, top[1].Amount)

	score, err := b.Add(record.Record{ID: "r6", Kind: record.Outflow, Amount: 50000, Category: "other", Date: "2025-01-20"})
	require.NoError(t, err)
	assert.True(t, score.IsAnomaly)
	assert.Greater(t, score.ZScore, 2.0)

	anomalies := b.Anomalies()
	require.Len(t, anomalies, 1)
	assert.Equal(t, "r6", anomalies[0].Record.ID)
	require.NoError(t, b.Validate())
}

func TestTrend(t *testing.T) {
	b := newBook(t)

	tr, ok, err := b.Trend("")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-01-01", tr.StartDate)
	assert.Equal(t, "2025-01-15", tr.EndDate)
	assert.InDelta(t, 1930.0, tr.TotalOutflow, 1e-9)
	assert.InDelta(t, 5000.0, tr.TotalInflow, 1e-9)
	assert.Len(t, b.Days(), 5)

	tr, ok, err = b.Trend("2025-01-10")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1850.0, tr.TotalOutflow, 1e-9)

	_, _, err = b.Trend("garbage")
	assert.Error(t, err)
}

func TestTrendEmpty(t *testing.T) {
	b, err := New(nil)
	require.NoError(t, err)

	_, ok, err := b.Trend("")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBudgets(t *testing.T) {
	b := newBook(t)

	budgets := b.Budgets()
	require.Len(t, budgets, 3)
	assert.Equal(t, "food", budgets[0].Key)
	assert.InDelta(t, 130.0, budgets[0].Priority, 1e-9)
	assert.Equal(t, priority.LevelExceeded, budgets[0].Level())

	alerts := b.Alerts()
	assert.Equal(t, []string{"food", "rent", "fun"}, keys(alerts))

	require.NoError(t, b.SetBudget("rent", 4000))
	require.NoError(t, b.SetBudget("travel", 300))
	alerts = b.Alerts()
	assert.Equal(t, []string{"food", "fun"}, keys(alerts))

	assert.Error(t, b.SetBudget("fun", 0))
}

func TestRemove(t *testing.T) {
	b := newBook(t)

	assert.True(t, b.Remove("r2"))
	assert.False(t, b.Remove("r2"))
	assert.Equal(t, 4, b.Len())
	_, ok := b.Get("r2")
	assert.False(t, ok)
	assert.Empty(t, b.Range("2025-01-08", "2025-01-08"))

	food := budget(t, b, "food")
	assert.InDelta(t, 150.0, food.Spent, 1e-9)
	require.NoError(t, b.Validate())
}

func TestAddRejects(t *testing.T) {
	b := newBook(t)

	_, err := b.Add(record.Record{ID: "r1", Amount: 1, Date: "2025-01-01"})
	assert.True(t, errors.Is(err, ErrDuplicateID))

	_, err = b.Add(record.Record{Amount: -1, Date: "2025-01-01"})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = b.Add(record.Record{Amount: 1, Date: "01/02/2025"})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	s, err := b.Add(record.Record{Amount: 1, Date: "2025-02-01"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.Record.ID)
	assert.Equal(t, 6, b.Len())
}

func TestCategoriesAndRecent(t *testing.T) {
	b := newBook(t)

	cats := b.Categories(0)
	require.Len(t, cats, 3)
	assert.Equal(t, record.CategoryAmount{Category: "rent", Amount: 1200}, cats[0])
	assert.Equal(t, record.CategoryAmount{Category: "food", Amount: 650}, cats[1])
	assert.Positive(t, b.SortStats().Comparisons)

	recent := b.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "r5", recent[0].ID)
	assert.Equal(t, "r4", recent[1].ID)
}

func TestScanDaily(t *testing.T) {
	cfg := config.Default()
	b, err := New(cfg)
	require.NoError(t, err)

	for i, amt := range []float64{100, 110, 90, 105} {
		_, err := b.Add(record.Record{Kind: record.Outflow, Amount: amt, Category: "food", Date: fmt.Sprintf("2025-03-%02d", i+1)})
		require.NoError(t, err)
	}
	assert.Empty(t, b.ScanDaily())
	assert.Equal(t, 4, b.Tracker().DailyStats().Count)

	_, err = b.Add(record.Record{Kind: record.Outflow, Amount: 400, Category: "food", Date: "2025-03-09"})
	require.NoError(t, err)
	_, err = b.Add(record.Record{Kind: record.Outflow, Amount: 500, Category: "fun", Date: "2025-03-09"})
	require.NoError(t, err)

	flagged := b.ScanDaily()
	require.Len(t, flagged, 1)
	assert.Equal(t, "2025-03-09", flagged[0].Record.Date)
	assert.Equal(t, 900.0, flagged[0].Value)
	assert.Equal(t, 5, b.Tracker().DailyStats().Count)
	assert.Empty(t, b.ScanDaily())
}

func TestMetricsWired(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := config.Default()
	b, err := New(cfg, WithMetrics(metrics.New(reg)))
	require.NoError(t, err)
	require.NoError(t, b.AddAll(scenario()))
	b.Top(3)

	n, err := testutil.GatherAndCount(reg, "goledger_engine_size")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)

	n, err = testutil.GatherAndCount(reg, "goledger_sort_paths_total")
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.WindowDays = 0
	_, err := New(cfg)
	assert.Error(t, err)
}

func budget(t *testing.T, b *Book, key string) priority.Entry {
	t.Helper()
	for _, e := range b.Budgets() {
		if e.Key == key {
			return e
		}
	}
	t.Fatalf("budget %q not found", key)
	return priority.Entry{}
}

func keys(es []priority.Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Key
	}
	return out
}
