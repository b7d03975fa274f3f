// Package priority implements an indexed max-priority queue of budget entries.
//
// Entries are ranked by how much of their limit has been spent. A key -> slot
// map is maintained in the same step as every heap swap, so updates and
// removals by key cost O(log n).
package priority

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hed1ad/goledger/pkg/metrics"
)

const engineName = "priority"

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1000

// ErrCapacityExceeded is returned when inserting a new key into a full queue.
var ErrCapacityExceeded = errors.New("priority queue is full")

// Entry is a budget tracked by the queue.
type Entry struct {
	Key      string
	Spent    float64
	Limit    float64
	Priority float64
}

// Level returns the alert level of the entry.
func (e Entry) Level() Level {
	return LevelFor(e.Priority)
}

// Priority returns the percentage of limit consumed by spent.
// A non-positive limit yields 0.
func Priority(spent, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return spent / limit * 100
}

// Queue is a binary max-heap over Entry.Priority addressable by key.
//
// Queue is not safe for concurrent use.
type Queue struct {
	heap     []Entry
	pos      map[string]int
	capacity int

	ops       int
	heapifies int

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used for rejected inserts.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithMetrics exports operation counts and size.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// New creates an empty queue holding at most capacity entries.
func New(capacity int, opts ...Option) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	q := &Queue{
		heap:     make([]Entry, 0, min(capacity, 64)),
		pos:      make(map[string]int),
		capacity: capacity,
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Insert adds a new entry. An existing key is routed to Update and keeps its
// limit. Inserting a new key into a full queue returns ErrCapacityExceeded and
// leaves the queue unchanged.
func (q *Queue) Insert(key string, spent, limit float64) error {
	if _, ok := q.pos[key]; ok {
		q.Update(key, spent)
		return nil
	}

	q.touch("insert")

	if len(q.heap) >= q.capacity {
		q.logger.Warn("budget queue full, entry rejected",
			zap.String("key", key),
			zap.Int("capacity", q.capacity),
		)
		return fmt.Errorf("insert %q: %w", key, ErrCapacityExceeded)
	}

	i := len(q.heap)
	q.heap = append(q.heap, Entry{
		Key:      key,
		Spent:    spent,
		Limit:    limit,
		Priority: Priority(spent, limit),
	})
	q.pos[key] = i
	q.swim(i)

	q.metrics.SetSize(engineName, len(q.heap))
	return nil
}

// Update sets the spent amount of key and restores heap order.
func (q *Queue) Update(key string, spent float64) bool {
	q.touch("update")

	i, ok := q.pos[key]
	if !ok {
		return false
	}

	e := &q.heap[i]
	e.Spent = spent
	q.reprioritize(i)
	return true
}

// SetLimit changes the limit of key and restores heap order.
func (q *Queue) SetLimit(key string, limit float64) bool {
	q.touch("set_limit")

	i, ok := q.pos[key]
	if !ok {
		return false
	}

	q.heap[i].Limit = limit
	q.reprioritize(i)
	return true
}

// ExtractMax removes and returns the entry with the highest priority.
func (q *Queue) ExtractMax() (Entry, bool) {
	q.touch("extract_max")

	if len(q.heap) == 0 {
		return Entry{}, false
	}

	top := q.heap[0]
	q.removeAt(0)
	return top, true
}

// Peek returns the entry with the highest priority without removing it.
func (q *Queue) Peek() (Entry, bool) {
	q.touch("peek")

	if len(q.heap) == 0 {
		return Entry{}, false
	}
	return q.heap[0], true
}

// Remove deletes key from the queue.
func (q *Queue) Remove(key string) bool {
	q.touch("remove")

	i, ok := q.pos[key]
	if !ok {
		return false
	}
	q.removeAt(i)
	return true
}

// Get returns the entry for key.
func (q *Queue) Get(key string) (Entry, bool) {
	q.touch("get")

	i, ok := q.pos[key]
	if !ok {
		return Entry{}, false
	}
	return q.heap[i], true
}

// Contains reports whether key is queued.
func (q *Queue) Contains(key string) bool {
	_, ok := q.pos[key]
	return ok
}

// Sorted returns a snapshot of all entries, highest priority first.
// Ties are broken by key so the order is deterministic.
func (q *Queue) Sorted() []Entry {
	q.touch("sorted")
	return q.snapshot(func(Entry) bool { return true })
}

// AlertsAbove returns a snapshot of the entries whose priority is at least
// threshold, highest first. The live heap is not modified.
func (q *Queue) AlertsAbove(threshold float64) []Entry {
	q.touch("alerts_above")
	return q.snapshot(func(e Entry) bool { return e.Priority >= threshold })
}

// Len returns the number of entries.
func (q *Queue) Len() int { return len(q.heap) }

// Cap returns the configured capacity.
func (q *Queue) Cap() int { return q.capacity }

// Operations returns the number of public operations performed.
func (q *Queue) Operations() int { return q.ops }

// Heapifies returns the number of swaps done while restoring heap order.
func (q *Queue) Heapifies() int { return q.heapifies }

// Clear removes every entry.
func (q *Queue) Clear() {
	q.heap = q.heap[:0]
	q.pos = make(map[string]int)
	q.metrics.SetSize(engineName, 0)
}

// Validate checks heap order and that the key map points at the live slot of
// every key.
func (q *Queue) Validate() error {
	if len(q.pos) != len(q.heap) {
		return fmt.Errorf("index holds %d keys, heap holds %d", len(q.pos), len(q.heap))
	}
	for i, e := range q.heap {
		if p, ok := q.pos[e.Key]; !ok || p != i {
			return fmt.Errorf("key %q at slot %d indexed at %d", e.Key, i, p)
		}
		for _, c := range [2]int{2*i + 1, 2*i + 2} {
			if c < len(q.heap) && q.heap[c].Priority > e.Priority {
				return fmt.Errorf("heap order broken between slot %d and %d", i, c)
			}
		}
	}
	return nil
}

func (q *Queue) touch(op string) {
	q.ops++
	q.metrics.Op(engineName, op)
}

func (q *Queue) snapshot(keep func(Entry) bool) []Entry {
	out := make([]Entry, 0, len(q.heap))
	for _, e := range q.heap {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (q *Queue) reprioritize(i int) {
	old := q.heap[i].Priority
	q.heap[i].Priority = Priority(q.heap[i].Spent, q.heap[i].Limit)
	if q.heap[i].Priority > old {
		q.swim(i)
	} else {
		q.sink(i)
	}
}

// removeAt fills slot i from the last slot, shrinks, then restores order at i.
func (q *Queue) removeAt(i int) {
	last := len(q.heap) - 1
	delete(q.pos, q.heap[i].Key)

	if i != last {
		q.heap[i] = q.heap[last]
		q.pos[q.heap[i].Key] = i
	}
	q.heap[last] = Entry{}
	q.heap = q.heap[:last]

	if i < len(q.heap) {
		q.swim(i)
		q.sink(i)
	}
	q.metrics.SetSize(engineName, len(q.heap))
}

func (q *Queue) swap(i, j int) {
	q.heap[i], q.heap[j] = q.heap[j], q.heap[i]
	q.pos[q.heap[i].Key] = i
	q.pos[q.heap[j].Key] = j
	q.heapifies++
}

func (q *Queue) swim(k int) {
	for k > 0 {
		p := (k - 1) / 2
		if q.heap[p].Priority >= q.heap[k].Priority {
			return
		}
		q.swap(k, p)
		k = p
	}
}

func (q *Queue) sink(k int) {
	n := len(q.heap)
	for 2*k+1 < n {
		j := 2*k + 1
		if j+1 < n && q.heap[j].Priority < q.heap[j+1].Priority {
			j++
		}
		if q.heap[k].Priority >= q.heap[j].Priority {
			return
		}
		q.swap(k, j)
		k = j
	}
}
