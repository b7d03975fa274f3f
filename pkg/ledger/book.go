// Package ledger wires the engines into one record book.
//
// A Book keeps every record in a date index and an ID index with matched
// inserts and deletes, runs each new record through the anomaly tracker, and
// keeps category budgets in a priority queue. Trend queries rebuild a sliding
// window over the date index on demand.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hed1ad/goledger/pkg/config"
	"github.com/hed1ad/goledger/pkg/detectors"
	"github.com/hed1ad/goledger/pkg/detectors/zscore"
	"github.com/hed1ad/goledger/pkg/index"
	"github.com/hed1ad/goledger/pkg/index/rbtree"
	"github.com/hed1ad/goledger/pkg/index/skiplist"
	"github.com/hed1ad/goledger/pkg/metrics"
	"github.com/hed1ad/goledger/pkg/priority"
	"github.com/hed1ad/goledger/pkg/record"
	"github.com/hed1ad/goledger/pkg/sorting/introsort"
	"github.com/hed1ad/goledger/pkg/window"
)

var (
	// ErrDuplicateID is returned when adding a record whose ID is taken.
	ErrDuplicateID = errors.New("duplicate record id")
	// ErrInvalidRecord is returned for records the engines cannot hold.
	ErrInvalidRecord = errors.New("invalid record")
)

// Book is a record collection with date, ID, anomaly and budget views.
//
// Book is not safe for concurrent use.
type Book struct {
	byDate   *rbtree.Tree
	byID     index.Index
	tracker  *zscore.Tracker
	budgets  *priority.Queue
	window   *window.Window
	alertAt  float64
	spent    map[string]float64
	flagged  []detectors.Score
	lastDay  string
	sortWork introsort.Stats

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Book.
type Option func(*Book)

// WithLogger sets the logger shared by the book and its engines.
func WithLogger(l *zap.Logger) Option {
	return func(b *Book) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMetrics instruments the book and its engines.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Book) {
		b.metrics = m
	}
}

// New builds an empty book from cfg. Budgets listed in cfg are registered with
// nothing spent.
func New(cfg *config.Config, opts ...Option) (*Book, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	b := &Book{
		alertAt: cfg.Queue.AlertThreshold,
		spent:   make(map[string]float64),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.byDate = rbtree.New(rbtree.WithMetrics(b.metrics))
	b.byID = skiplist.New(
		skiplist.WithMaxLevel(cfg.SkipList.MaxLevel),
		skiplist.WithSeed(cfg.SkipList.Seed),
		skiplist.WithMetrics(b.metrics),
	)
	b.tracker = zscore.New(
		zscore.WithConfig(cfg.Detector()),
		zscore.WithLogger(b.logger),
		zscore.WithMetrics(b.metrics),
	)
	b.budgets = priority.New(cfg.Queue.Capacity,
		priority.WithLogger(b.logger),
		priority.WithMetrics(b.metrics),
	)
	b.window = window.New(cfg.WindowDays, window.WithMetrics(b.metrics))

	cats := make([]string, 0, len(cfg.Budgets))
	for c := range cfg.Budgets {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		if err := b.SetBudget(c, cfg.Budgets[c]); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Add stores r in both indexes and returns its anomaly score, judged against
// the records added before it. An empty ID is replaced by a fresh one.
func (b *Book) Add(r record.Record) (detectors.Score, error) {
	if r.ID == "" {
		r.ID = record.NewID()
	}
	if _, ok := b.byID.FindByID(r.ID); ok {
		return detectors.Score{}, fmt.Errorf("add %q: %w", r.ID, ErrDuplicateID)
	}
	if r.Amount < 0 {
		return detectors.Score{}, fmt.Errorf("add %q: negative amount: %w", r.ID, ErrInvalidRecord)
	}
	if _, err := record.ParseDate(r.Date); err != nil {
		return detectors.Score{}, fmt.Errorf("add %q: %w: %v", r.ID, ErrInvalidRecord, err)
	}

	score := b.tracker.Detect(r)
	if score.IsAnomaly {
		b.flagged = append(b.flagged, score)
	}

	b.byDate.Insert(r)
	b.byID.Insert(r)

	if r.IsOutflow() {
		b.addSpent(r.Category, r.Amount)
	}
	return score, nil
}

// AddAll adds records in order and stops at the first error.
func (b *Book) AddAll(records []record.Record) error {
	for _, r := range records {
		if _, err := b.Add(r); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the record with id from both indexes.
func (b *Book) Remove(id string) bool {
	r, ok := b.byID.FindByID(id)
	if !ok {
		return false
	}

	b.byID.DeleteByID(id)
	if !b.byDate.DeleteByID(id) {
		b.logger.Error("date index out of sync", zap.String("id", id), zap.String("date", r.Date))
	}
	if len(b.byDate.OnDate(r.Date)) == 0 {
		b.byDate.DeleteDate(r.Date)
	}

	if r.IsOutflow() {
		b.addSpent(r.Category, -r.Amount)
	}
	return true
}

// Get returns the record with id.
func (b *Book) Get(id string) (record.Record, bool) {
	return b.byID.FindByID(id)
}

// Len returns the number of records.
func (b *Book) Len() int { return b.byID.Len() }

// Records returns every record, oldest first.
func (b *Book) Records() []record.Record { return b.byDate.InOrder() }

// Range returns the records dated within [start, end], oldest first.
func (b *Book) Range(start, end string) []record.Record {
	return b.byDate.Range(start, end)
}

// Month returns the records of a YYYY-MM month, oldest first.
func (b *Book) Month(yearMonth string) []record.Record {
	return b.byDate.ByMonth(yearMonth)
}

// Recent returns up to n records, newest first.
func (b *Book) Recent(n int) []record.Record {
	all := b.byDate.ReverseInOrder()
	if n >= 0 && n < len(all) {
		all = all[:n]
	}
	return all
}

// Top returns the k largest expenses.
func (b *Book) Top(k int) []record.Record {
	var outflows []record.Record
	for _, r := range b.byDate.InOrder() {
		if r.IsOutflow() {
			outflows = append(outflows, r)
		}
	}

	var st introsort.Stats
	top := introsort.TopK(outflows, k, &st)
	b.account(st)
	return top
}

// Categories returns the k categories with the largest spending.
// A non-positive k returns all of them.
func (b *Book) Categories(k int) []record.CategoryAmount {
	var st introsort.Stats
	cats := introsort.TopCategories(b.byDate.InOrder(), k, &st)
	b.account(st)
	return cats
}

// SortStats returns the accumulated sorting work of Top and Categories.
func (b *Book) SortStats() introsort.Stats { return b.sortWork }

// Trend summarizes the window of days ending at endDate. An empty endDate
// means the date of the newest record.
func (b *Book) Trend(endDate string) (window.Trend, bool, error) {
	if endDate == "" {
		recent := b.byDate.ReverseInOrder()
		if len(recent) == 0 {
			return window.Trend{}, false, nil
		}
		endDate = recent[0].Date
	}

	start, err := record.AddDays(endDate, -(b.window.Cap() - 1))
	if err != nil {
		return window.Trend{}, false, err
	}
	if err := b.window.BuildFromRecords(b.byDate.Range(start, endDate), endDate); err != nil {
		return window.Trend{}, false, err
	}

	tr, ok := b.window.Trend()
	return tr, ok, nil
}

// Days returns the daily totals of the window built by the last Trend call.
func (b *Book) Days() []window.Day { return b.window.Days() }

// ScanDaily judges each day's outflow total against the days before it and
// returns the flagged days. Only days after the last scanned day are
// considered, so repeated calls pick up where the previous one stopped.
func (b *Book) ScanDaily() []detectors.Score {
	type day struct {
		date  string
		total float64
	}
	var days []day
	for _, r := range b.byDate.Range(b.nextDay(), "9999-12-31") {
		if !r.IsOutflow() {
			continue
		}
		if len(days) == 0 || days[len(days)-1].date != r.Date {
			days = append(days, day{date: r.Date})
		}
		days[len(days)-1].total += r.Amount
	}

	var out []detectors.Score
	for _, d := range days {
		s := b.tracker.CheckDaily(d.total)
		b.tracker.ObserveDaily(d.total)
		if s.IsAnomaly {
			s.Record = record.Record{Date: d.date, Amount: d.total, Category: zscore.SeriesDaily}
			out = append(out, s)
			b.flagged = append(b.flagged, s)
		}
		b.lastDay = d.date
	}
	return out
}

// Anomalies returns every score flagged so far, in detection order.
func (b *Book) Anomalies() []detectors.Score {
	return append([]detectors.Score(nil), b.flagged...)
}

// Tracker exposes the anomaly tracker for statistics queries.
func (b *Book) Tracker() *zscore.Tracker { return b.tracker }

// SetBudget registers or changes the spending limit of category.
func (b *Book) SetBudget(category string, limit float64) error {
	if limit <= 0 {
		return fmt.Errorf("budget %q: limit must be positive: %w", category, ErrInvalidRecord)
	}
	if b.budgets.Contains(category) {
		b.budgets.SetLimit(category, limit)
		return nil
	}
	return b.budgets.Insert(category, b.spent[category], limit)
}

// Budgets returns every budget, most consumed first.
func (b *Book) Budgets() []priority.Entry { return b.budgets.Sorted() }

// Alerts returns the budgets at or above the configured alert threshold.
func (b *Book) Alerts() []priority.Entry { return b.budgets.AlertsAbove(b.alertAt) }

// Validate checks the invariants of every engine and that both indexes hold
// the same records.
func (b *Book) Validate() error {
	if err := b.byDate.Validate(); err != nil {
		return fmt.Errorf("date index: %w", err)
	}
	if err := b.budgets.Validate(); err != nil {
		return fmt.Errorf("budgets: %w", err)
	}
	if b.byDate.Len() != b.byID.Len() {
		return fmt.Errorf("date index holds %d records, id index %d", b.byDate.Len(), b.byID.Len())
	}
	for _, r := range b.byDate.InOrder() {
		if _, ok := b.byID.FindByID(r.ID); !ok {
			return fmt.Errorf("record %q missing from id index", r.ID)
		}
	}
	return nil
}

func (b *Book) addSpent(category string, amount float64) {
	b.spent[category] += amount
	if b.budgets.Contains(category) {
		b.budgets.Update(category, b.spent[category])
	}
}

func (b *Book) account(st introsort.Stats) {
	st.Report(b.metrics)
	b.sortWork.Partitions += st.Partitions
	b.sortWork.HeapsortCalls += st.HeapsortCalls
	b.sortWork.InsertionCalls += st.InsertionCalls
	b.sortWork.Comparisons += st.Comparisons
	b.sortWork.Swaps += st.Swaps
	b.sortWork.MaxDepth = max(b.sortWork.MaxDepth, st.MaxDepth)
}

// nextDay returns the first date ScanDaily has not looked at.
func (b *Book) nextDay() string {
	if b.lastDay == "" {
		return "0000-01-01"
	}
	next, err := record.AddDays(b.lastDay, 1)
	if err != nil {
		return b.lastDay
	}
	return next
}
