// Package window implements a fixed-capacity trailing window of daily totals.
package window

import (
	"sort"
	"time"

	"github.com/hed1ad/goledger/pkg/metrics"
	"github.com/hed1ad/goledger/pkg/record"
)

const engineName = "window"

const (
	// DefaultDays is used when New is given an out-of-range capacity.
	DefaultDays = 30
	// MaxDays is the largest supported window.
	MaxDays = 365
)

// Day aggregates the records of one date.
type Day struct {
	Date    string
	Inflow  float64
	Outflow float64
	Count   int
}

// Trend summarizes the days currently held by a window.
type Trend struct {
	TotalInflow  float64
	TotalOutflow float64
	AvgInflow    float64
	AvgOutflow   float64
	// Direction is the average outflow of the later half of the window minus
	// that of the earlier half, in slot order. Positive means spending is
	// rising when days were added oldest first.
	Direction float64
	Days      int
	StartDate string
	EndDate   string
}

// Window is a circular buffer of Day slots with running sums.
//
// Slots are kept in insertion order; the oldest slot is evicted when a new
// date arrives at capacity. Window is not safe for concurrent use.
type Window struct {
	slots    []Day
	byDate   map[string]int
	start    int
	count    int
	capacity int

	sumInflow  float64
	sumOutflow float64

	ops    int
	slides int

	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configures a Window.
type Option func(*Window)

// WithClock sets the clock used when BuildFromRecords gets no end date.
func WithClock(now func() time.Time) Option {
	return func(w *Window) {
		if now != nil {
			w.now = now
		}
	}
}

// WithMetrics exports operation and slide counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Window) {
		w.metrics = m
	}
}

// New creates a window holding at most days slots. Values outside
// [1, MaxDays] fall back to DefaultDays.
func New(days int, opts ...Option) *Window {
	if days <= 0 || days > MaxDays {
		days = DefaultDays
	}

	w := &Window{
		slots:    make([]Day, days),
		byDate:   make(map[string]int, days),
		capacity: days,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// AddDay sets the totals for date. A date already in the window is replaced
// in place and the running sums move by the difference. A new date evicts the
// oldest slot first when the window is full.
//
// Slots are kept in arrival order, not date order: a new date is always
// stored as the newest day, even when it is earlier than days already held,
// and Trend then treats it as the latest. Callers with unordered input should
// use BuildFromRecords.
func (w *Window) AddDay(date string, inflow, outflow float64, count int) {
	w.touch("add_day")

	if i, ok := w.byDate[date]; ok {
		d := &w.slots[i]
		w.sumInflow += inflow - d.Inflow
		w.sumOutflow += outflow - d.Outflow
		d.Inflow, d.Outflow, d.Count = inflow, outflow, count
		return
	}

	if w.count == w.capacity {
		w.evictOldest()
	}

	i := (w.start + w.count) % w.capacity
	w.slots[i] = Day{Date: date, Inflow: inflow, Outflow: outflow, Count: count}
	w.byDate[date] = i
	w.count++
	w.sumInflow += inflow
	w.sumOutflow += outflow
}

// UpdateDay adds deltas to the totals of date, or adds the date with the
// deltas as its totals if it is not in the window.
func (w *Window) UpdateDay(date string, inflow, outflow float64, count int) {
	i, ok := w.byDate[date]
	if !ok {
		w.AddDay(date, inflow, outflow, count)
		return
	}

	w.touch("update_day")
	d := &w.slots[i]
	d.Inflow += inflow
	d.Outflow += outflow
	d.Count += count
	w.sumInflow += inflow
	w.sumOutflow += outflow
}

// Trend summarizes the held days. It returns false for an empty window.
func (w *Window) Trend() (Trend, bool) {
	w.touch("trend")

	if w.count == 0 {
		return Trend{}, false
	}

	n := float64(w.count)
	tr := Trend{
		TotalInflow:  w.sumInflow,
		TotalOutflow: w.sumOutflow,
		AvgInflow:    w.sumInflow / n,
		AvgOutflow:   w.sumOutflow / n,
		Days:         w.count,
		StartDate:    w.at(0).Date,
		EndDate:      w.at(w.count - 1).Date,
	}

	if w.count >= 2 {
		half := w.count / 2
		var early, late float64
		for i := 0; i < half; i++ {
			early += w.at(i).Outflow
		}
		for i := half; i < w.count; i++ {
			late += w.at(i).Outflow
		}
		tr.Direction = late/float64(w.count-half) - early/float64(half)
	}

	return tr, true
}

// BuildFromRecords rebuilds the window from records dated within the
// capacity-day span ending at endDate (inclusive). An empty endDate means
// today. Records are grouped per date and replayed oldest first.
func (w *Window) BuildFromRecords(records []record.Record, endDate string) error {
	w.touch("build")
	w.Clear()

	if endDate == "" {
		endDate = record.FormatDate(w.now())
	}
	startDate, err := record.AddDays(endDate, -(w.capacity - 1))
	if err != nil {
		return err
	}

	groups := make(map[string]*Day)
	for _, r := range records {
		if r.Date < startDate || r.Date > endDate {
			continue
		}
		g, ok := groups[r.Date]
		if !ok {
			g = &Day{Date: r.Date}
			groups[r.Date] = g
		}
		if r.IsInflow() {
			g.Inflow += r.Amount
		} else {
			g.Outflow += r.Amount
		}
		g.Count++
	}

	dates := make([]string, 0, len(groups))
	for d := range groups {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	for _, d := range dates {
		g := groups[d]
		w.AddDay(g.Date, g.Inflow, g.Outflow, g.Count)
	}
	return nil
}

// Days returns the held days, oldest first.
func (w *Window) Days() []Day {
	out := make([]Day, w.count)
	for i := range out {
		out[i] = w.at(i)
	}
	return out
}

// Sums returns the running inflow and outflow sums.
func (w *Window) Sums() (inflow, outflow float64) {
	return w.sumInflow, w.sumOutflow
}

// Len returns the number of held days.
func (w *Window) Len() int { return w.count }

// Cap returns the window capacity in days.
func (w *Window) Cap() int { return w.capacity }

// Slides returns how many days were evicted to make room.
func (w *Window) Slides() int { return w.slides }

// Operations returns the number of public operations performed.
func (w *Window) Operations() int { return w.ops }

// Clear empties the window.
func (w *Window) Clear() {
	for i := range w.slots {
		w.slots[i] = Day{}
	}
	w.byDate = make(map[string]int, w.capacity)
	w.start = 0
	w.count = 0
	w.sumInflow = 0
	w.sumOutflow = 0
}

func (w *Window) touch(op string) {
	w.ops++
	w.metrics.Op(engineName, op)
}

// at returns the i-th held day counted from the oldest.
func (w *Window) at(i int) Day {
	return w.slots[(w.start+i)%w.capacity]
}

func (w *Window) evictOldest() {
	old := w.slots[w.start]
	w.sumInflow -= old.Inflow
	w.sumOutflow -= old.Outflow
	delete(w.byDate, old.Date)
	w.slots[w.start] = Day{}

	w.start = (w.start + 1) % w.capacity
	w.count--
	w.slides++
	w.metrics.Slide()
}
