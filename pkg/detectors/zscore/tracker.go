// Package zscore flags unusual ledger amounts by their z-score against
// streaming per-series statistics.
package zscore

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/hed1ad/goledger/pkg/detectors"
	"github.com/hed1ad/goledger/pkg/metrics"
	"github.com/hed1ad/goledger/pkg/record"
	"github.com/hed1ad/goledger/pkg/stats/welford"
)

// Series names, used as metric labels and log fields.
const (
	SeriesOutflow  = "outflow"
	SeriesInflow   = "inflow"
	SeriesDaily    = "daily"
	SeriesCategory = "category"
)

// Tracker keeps one Welford series for all outflows, one for inflows, one for
// daily outflow totals and one per outflow category.
//
// Tracker is not safe for concurrent use. DetectStream owns the tracker until
// it returns.
type Tracker struct {
	threshold  float64
	minSamples int

	outflow    welford.Stats
	inflow     welford.Stats
	daily      welford.Stats
	categories map[string]*welford.Stats
	order      []string

	logger  *zap.Logger
	metrics *metrics.Metrics
}

var _ detectors.StreamDetector = (*Tracker)(nil)

// Option configures a Tracker.
type Option func(*Tracker)

// WithConfig sets the threshold and minimum history.
// Non-positive fields keep their defaults.
func WithConfig(cfg detectors.Config) Option {
	return func(t *Tracker) {
		if cfg.Threshold > 0 {
			t.threshold = cfg.Threshold
		}
		if cfg.MinSamples > 0 {
			t.minSamples = cfg.MinSamples
		}
	}
}

// WithLogger sets the logger anomalies are reported to at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMetrics counts anomalies per series.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// New creates an empty tracker.
func New(opts ...Option) *Tracker {
	cfg := detectors.DefaultConfig()
	t := &Tracker{
		threshold:  cfg.Threshold,
		minSamples: cfg.MinSamples,
		categories: make(map[string]*welford.Stats),
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Threshold returns the configured |z| threshold.
func (t *Tracker) Threshold() float64 { return t.threshold }

// ObserveOutflow records an expense in the global and category series.
// Non-positive amounts are ignored.
func (t *Tracker) ObserveOutflow(amount float64, category string) {
	if amount <= 0 {
		return
	}
	t.outflow.Update(amount)

	s, ok := t.categories[category]
	if !ok {
		s = &welford.Stats{}
		t.categories[category] = s
		t.order = append(t.order, category)
	}
	s.Update(amount)
}

// ObserveInflow records income. Non-positive amounts are ignored.
func (t *Tracker) ObserveInflow(amount float64) {
	if amount > 0 {
		t.inflow.Update(amount)
	}
}

// ObserveDaily records one day's outflow total. Non-positive totals are ignored.
func (t *Tracker) ObserveDaily(total float64) {
	if total > 0 {
		t.daily.Update(total)
	}
}

// Observe dispatches r to the series of its kind.
func (t *Tracker) Observe(r record.Record) {
	if r.IsInflow() {
		t.ObserveInflow(r.Amount)
		return
	}
	t.ObserveOutflow(r.Amount, r.Category)
}

// CheckOutflow judges an expense against all expenses seen so far.
func (t *Tracker) CheckOutflow(amount float64) detectors.Score {
	return t.check(&t.outflow, SeriesOutflow, amount, func(z, mean float64) string {
		if z > 0 {
			return fmt.Sprintf("Unusually high expense: $%.2f (%.1f std devs above average $%.2f)", amount, z, mean)
		}
		return fmt.Sprintf("Unusually low expense: $%.2f (%.1f std devs below average $%.2f)", amount, -z, mean)
	})
}

// CheckInflow judges income against all income seen so far.
func (t *Tracker) CheckInflow(amount float64) detectors.Score {
	return t.check(&t.inflow, SeriesInflow, amount, func(z, mean float64) string {
		return fmt.Sprintf("Unusual income: $%.2f (z-score: %.2f, avg: $%.2f)", amount, z, mean)
	})
}

// CheckCategory judges an expense against its category only. A category
// without enough history is never anomalous.
func (t *Tracker) CheckCategory(category string, amount float64) detectors.Score {
	s, ok := t.categories[category]
	if !ok {
		return detectors.Score{Value: amount}
	}
	return t.check(s, SeriesCategory, amount, func(z, mean float64) string {
		return fmt.Sprintf("Unusual %s expense: $%.2f (z-score: %.2f, avg: $%.2f)", category, amount, z, mean)
	})
}

// CheckDaily judges a day's outflow total against past daily totals.
func (t *Tracker) CheckDaily(total float64) detectors.Score {
	return t.check(&t.daily, SeriesDaily, total, func(z, mean float64) string {
		return fmt.Sprintf("Unusual daily spending: $%.2f (z-score: %.2f, avg: $%.2f/day)", total, z, mean)
	})
}

// Check judges r without recording it. Expenses are checked globally and
// escalated by their category series; income is checked against income.
func (t *Tracker) Check(r record.Record) detectors.Score {
	var s detectors.Score
	if r.IsInflow() {
		s = t.CheckInflow(r.Amount)
	} else {
		s = t.CheckOutflow(r.Amount)
		if c := t.CheckCategory(r.Category, r.Amount); c.IsAnomaly && rank(c.Severity) > rank(s.Severity) {
			s = c
		}
	}

	s.Record = r
	if s.IsAnomaly {
		t.logger.Debug("anomaly detected",
			zap.String("id", r.ID),
			zap.String("category", r.Category),
			zap.Float64("amount", r.Amount),
			zap.Float64("z", s.ZScore),
			zap.String("severity", string(s.Severity)),
		)
	}
	return s
}

// Detect checks r against the history, then records it.
func (t *Tracker) Detect(r record.Record) detectors.Score {
	s := t.Check(r)
	t.Observe(r)
	return s
}

// DetectStream runs Detect on every record from in and sends the scores to out.
func (t *Tracker) DetectStream(ctx context.Context, in <-chan record.Record, out chan<- detectors.Score) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-in:
			if !ok {
				return nil
			}

			select {
			case out <- t.Detect(r):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// OutflowStats returns a snapshot of the global expense series.
func (t *Tracker) OutflowStats() welford.Summary {
	return t.outflow.Snapshot()
}

// InflowStats returns a snapshot of the income series.
func (t *Tracker) InflowStats() welford.Summary {
	return t.inflow.Snapshot()
}

// DailyStats returns a snapshot of the daily total series.
func (t *Tracker) DailyStats() welford.Summary {
	return t.daily.Snapshot()
}

// CategoryStats returns a snapshot of one category series.
func (t *Tracker) CategoryStats(name string) (welford.Summary, bool) {
	s, ok := t.categories[name]
	if !ok {
		return welford.Summary{}, false
	}
	return s.Snapshot(), true
}

// Categories returns the tracked categories in first-seen order.
func (t *Tracker) Categories() []string {
	return append([]string(nil), t.order...)
}

// AnomalyCount returns the anomalies flagged on the global expense and daily
// series.
func (t *Tracker) AnomalyCount() int {
	return t.outflow.Anomalies() + t.daily.Anomalies()
}

// Reset drops all history.
func (t *Tracker) Reset() {
	t.outflow.Reset()
	t.inflow.Reset()
	t.daily.Reset()
	t.categories = make(map[string]*welford.Stats)
	t.order = nil
}

func (t *Tracker) check(s *welford.Stats, series string, v float64, describe func(z, mean float64) string) detectors.Score {
	score := detectors.Score{
		Value:  v,
		Mean:   s.Mean(),
		StdDev: s.StdDev(),
	}
	if v <= 0 {
		return score
	}

	score.ZScore = s.ZScore(v)
	if !s.IsAnomalyWith(v, t.threshold, t.minSamples) {
		return score
	}

	score.IsAnomaly = true
	score.Severity = detectors.SeverityWarning
	if math.Abs(score.ZScore) >= t.threshold+1 {
		score.Severity = detectors.SeverityCritical
	}
	score.Description = describe(score.ZScore, score.Mean)
	t.metrics.Anomaly(series)
	return score
}

func rank(s detectors.Severity) int {
	switch s {
	case detectors.SeverityCritical:
		return 2
	case detectors.SeverityWarning:
		return 1
	default:
		return 0
	}
}
