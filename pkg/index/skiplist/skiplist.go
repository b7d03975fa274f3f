// Package skiplist implements a probabilistic record index keyed by record id.
package skiplist

import (
	"math/rand"

	"github.com/hed1ad/goledger/pkg/metrics"
	"github.com/hed1ad/goledger/pkg/record"
)

const engineName = "skiplist"

const (
	// DefaultMaxLevel caps the tower height of any node.
	DefaultMaxLevel = 16
	// DefaultProbability is the chance of promoting a node one more level.
	DefaultProbability = 0.5
)

// end terminates every level.
const end = -1

// head is the arena slot of the header node.
const head = 0

type node struct {
	rec     record.Record
	forward []int
}

// SkipList is an ordered map from record id to record with expected
// O(log n) search, insert and delete.
//
// Nodes live in an arena addressed by integer slots with a free-list for
// reuse. SkipList is not safe for concurrent use.
type SkipList struct {
	nodes []node
	free  []int

	level    int // highest level currently in use, 0-based
	size     int
	maxLevel int
	prob     float64
	rng      *rand.Rand

	ops          int
	distribution []int

	metrics *metrics.Metrics
}

// Option configures a SkipList.
type Option func(*SkipList)

// WithMaxLevel sets the maximum number of levels.
func WithMaxLevel(n int) Option {
	return func(s *SkipList) {
		if n > 0 {
			s.maxLevel = n
		}
	}
}

// WithProbability sets the promotion probability.
func WithProbability(p float64) Option {
	return func(s *SkipList) {
		if p > 0 && p < 1 {
			s.prob = p
		}
	}
}

// WithSeed sets the random seed for reproducible level assignment.
func WithSeed(seed int64) Option {
	return func(s *SkipList) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithMetrics exports operation counts and size.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SkipList) {
		s.metrics = m
	}
}

// New creates an empty skip list.
func New(opts ...Option) *SkipList {
	s := &SkipList{
		maxLevel: DefaultMaxLevel,
		prob:     DefaultProbability,
		rng:      rand.New(rand.NewSource(42)),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.distribution = make([]int, s.maxLevel)
	s.nodes = []node{{forward: newForward(s.maxLevel)}}
	return s
}

// Insert stores a copy of r. An existing id is overwritten in place.
func (s *SkipList) Insert(r record.Record) {
	s.touch("insert")

	update := make([]int, s.maxLevel)
	cur := s.descend(r.ID, update)

	if next := s.nodes[cur].forward[0]; next != end && s.nodes[next].rec.ID == r.ID {
		s.nodes[next].rec = r
		return
	}

	lvl := s.randomLevel()
	s.distribution[lvl]++

	// Allocate before touching any link so a failure can never leave a
	// partially spliced tower behind.
	n := s.alloc(r, lvl)

	if lvl > s.level {
		for i := s.level + 1; i <= lvl; i++ {
			update[i] = head
		}
		s.level = lvl
	}

	for i := 0; i <= lvl; i++ {
		s.nodes[n].forward[i] = s.nodes[update[i]].forward[i]
		s.nodes[update[i]].forward[i] = n
	}

	s.size++
	s.metrics.SetSize(engineName, s.size)
}

// Search returns a copy of the record with the given id.
func (s *SkipList) Search(id string) (record.Record, bool) {
	s.touch("search")

	cur := s.descend(id, nil)
	if next := s.nodes[cur].forward[0]; next != end && s.nodes[next].rec.ID == id {
		return s.nodes[next].rec, true
	}
	return record.Record{}, false
}

// FindByID is Search; it makes SkipList an index.Index.
func (s *SkipList) FindByID(id string) (record.Record, bool) {
	return s.Search(id)
}

// Delete removes the record with the given id.
func (s *SkipList) Delete(id string) bool {
	s.touch("delete")

	update := make([]int, s.maxLevel)
	cur := s.descend(id, update)

	target := s.nodes[cur].forward[0]
	if target == end || s.nodes[target].rec.ID != id {
		return false
	}

	for i := 0; i <= s.level; i++ {
		if s.nodes[update[i]].forward[i] != target {
			break
		}
		s.nodes[update[i]].forward[i] = s.nodes[target].forward[i]
	}
	s.release(target)

	for s.level > 0 && s.nodes[head].forward[s.level] == end {
		s.level--
	}

	s.size--
	s.metrics.SetSize(engineName, s.size)
	return true
}

// DeleteByID is Delete; it makes SkipList an index.Index.
func (s *SkipList) DeleteByID(id string) bool {
	return s.Delete(id)
}

// All returns copies of every record in ascending id order.
func (s *SkipList) All() []record.Record {
	s.touch("all")

	out := make([]record.Record, 0, s.size)
	for cur := s.nodes[head].forward[0]; cur != end; cur = s.nodes[cur].forward[0] {
		out = append(out, s.nodes[cur].rec)
	}
	return out
}

// Len returns the number of records.
func (s *SkipList) Len() int { return s.size }

// Level returns the highest level in use, 0-based.
func (s *SkipList) Level() int { return s.level }

// Operations returns the number of public operations performed.
func (s *SkipList) Operations() int { return s.ops }

// LevelDistribution returns how many inserted nodes received each level.
// Index i counts towers of height i+1.
func (s *SkipList) LevelDistribution() []int {
	return append([]int(nil), s.distribution...)
}

// Clear removes every record.
func (s *SkipList) Clear() {
	s.nodes = []node{{forward: newForward(s.maxLevel)}}
	s.free = nil
	s.level = 0
	s.size = 0
	for i := range s.distribution {
		s.distribution[i] = 0
	}
	s.metrics.SetSize(engineName, 0)
}

func (s *SkipList) touch(op string) {
	s.ops++
	s.metrics.Op(engineName, op)
}

// descend walks from the top level down and returns the last node whose id is
// below id on level 0. If update is non-nil it receives that node per level.
func (s *SkipList) descend(id string, update []int) int {
	cur := head
	for i := s.level; i >= 0; i-- {
		for {
			next := s.nodes[cur].forward[i]
			if next == end || s.nodes[next].rec.ID >= id {
				break
			}
			cur = next
		}
		if update != nil {
			update[i] = cur
		}
	}
	return cur
}

// randomLevel returns a 0-based level: each extra level is granted with
// probability prob, up to maxLevel-1.
func (s *SkipList) randomLevel() int {
	lvl := 0
	for lvl < s.maxLevel-1 && s.rng.Float64() < s.prob {
		lvl++
	}
	return lvl
}

func (s *SkipList) alloc(r record.Record, lvl int) int {
	n := node{rec: r, forward: newForward(lvl + 1)}
	if k := len(s.free); k > 0 {
		i := s.free[k-1]
		s.free = s.free[:k-1]
		s.nodes[i] = n
		return i
	}
	s.nodes = append(s.nodes, n)
	return len(s.nodes) - 1
}

func (s *SkipList) release(i int) {
	s.nodes[i] = node{}
	s.free = append(s.free, i)
}

func newForward(n int) []int {
	f := make([]int, n)
	for i := range f {
		f[i] = end
	}
	return f
}
