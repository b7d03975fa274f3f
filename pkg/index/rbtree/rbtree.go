// Package rbtree implements a date-ordered record index on a red-black tree.
//
// Each distinct date owns one node holding every record of that date. Nodes live
// in an arena addressed by integer slots; slot 0 is the black NIL sentinel and
// slots freed by DeleteDate are reused through a free-list. All traversals are
// iterative, so skewed or very large inputs never grow the goroutine stack.
package rbtree

import (
	"errors"
	"fmt"

	"github.com/hed1ad/goledger/pkg/metrics"
	"github.com/hed1ad/goledger/pkg/record"
)

const engineName = "rbtree"

// sentinel is the arena slot of the shared NIL leaf.
const sentinel = 0

type color uint8

// black is the zero value so that a cleared slot is a valid NIL leaf.
const (
	black color = iota
	red
)

type node struct {
	date    string
	records []record.Record
	color   color
	parent  int
	left    int
	right   int
}

// Tree is a red-black tree keyed by YYYY-MM-DD date.
//
// Tree is not safe for concurrent use; guard each instance with one lock if it
// is shared between goroutines.
type Tree struct {
	nodes []node
	free  []int
	root  int

	nodeCount int
	size      int
	ops       int
	rotations int

	metrics *metrics.Metrics
}

// Option configures a Tree.
type Option func(*Tree)

// WithMetrics exports operation and rotation counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tree) {
		t.metrics = m
	}
}

// New creates an empty tree.
func New(opts ...Option) *Tree {
	t := &Tree{
		nodes: make([]node, 1, 64),
		root:  sentinel,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Insert adds a copy of r under r.Date. A date that already has a node only
// grows that node's bucket; otherwise a new red node is linked and the tree is
// rebalanced.
func (t *Tree) Insert(r record.Record) {
	t.touch("insert")

	parent := sentinel
	cur := t.root
	for cur != sentinel {
		parent = cur
		switch {
		case r.Date < t.nodes[cur].date:
			cur = t.nodes[cur].left
		case r.Date > t.nodes[cur].date:
			cur = t.nodes[cur].right
		default:
			t.nodes[cur].records = append(t.nodes[cur].records, r)
			t.size++
			t.metrics.SetSize(engineName, t.size)
			return
		}
	}

	z := t.alloc(r.Date)
	t.nodes[z].records = append(t.nodes[z].records, r)
	t.nodes[z].parent = parent

	switch {
	case parent == sentinel:
		t.root = z
	case r.Date < t.nodes[parent].date:
		t.nodes[parent].left = z
	default:
		t.nodes[parent].right = z
	}

	t.nodeCount++
	t.size++
	t.insertFixup(z)
	t.metrics.SetSize(engineName, t.size)
}

// DeleteByID removes the record with the given id. The date node stays in the
// tree even when its bucket becomes empty; use Prune or DeleteDate to drop it.
func (t *Tree) DeleteByID(id string) bool {
	t.touch("delete")

	for i := 1; i < len(t.nodes); i++ {
		recs := t.nodes[i].records
		for j := range recs {
			if recs[j].ID != id {
				continue
			}
			copy(recs[j:], recs[j+1:])
			recs[len(recs)-1] = record.Record{}
			t.nodes[i].records = recs[:len(recs)-1]
			t.size--
			t.metrics.SetSize(engineName, t.size)
			return true
		}
	}
	return false
}

// FindByID returns a copy of the record with the given id. It scans every
// bucket, because the tree is not keyed by id.
func (t *Tree) FindByID(id string) (record.Record, bool) {
	t.touch("find")

	for i := 1; i < len(t.nodes); i++ {
		for _, r := range t.nodes[i].records {
			if r.ID == id {
				return r, true
			}
		}
	}
	return record.Record{}, false
}

// OnDate returns copies of the records stored under date, in insertion order.
func (t *Tree) OnDate(date string) []record.Record {
	t.touch("get")

	i := t.find(date)
	if i == sentinel {
		return nil
	}
	return append([]record.Record(nil), t.nodes[i].records...)
}

// DeleteDate removes the node for date together with all of its records.
func (t *Tree) DeleteDate(date string) bool {
	t.touch("delete_date")

	z := t.find(date)
	if z == sentinel {
		return false
	}

	t.size -= len(t.nodes[z].records)
	t.deleteNode(z)
	t.nodeCount--
	t.metrics.SetSize(engineName, t.size)
	return true
}

// Prune drops every date node whose bucket is empty and returns how many were
// removed.
func (t *Tree) Prune() int {
	var empty []string
	t.walk(func(i int) {
		if len(t.nodes[i].records) == 0 {
			empty = append(empty, t.nodes[i].date)
		}
	})

	for _, d := range empty {
		t.DeleteDate(d)
	}
	return len(empty)
}

// Range returns the records dated within [start, end], ascending by date.
// Subtrees that cannot intersect the range are never entered, so the cost is
// O(log n + k) for k matches.
func (t *Tree) Range(start, end string) []record.Record {
	t.touch("range")

	if start > end {
		return nil
	}

	var (
		out   []record.Record
		stack []int
		cur   = t.root
	)
	for cur != sentinel || len(stack) > 0 {
		for cur != sentinel {
			stack = append(stack, cur)
			if t.nodes[cur].date > start {
				cur = t.nodes[cur].left
			} else {
				cur = sentinel
			}
		}

		cur = stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[cur]
		if n.date >= start && n.date <= end {
			out = append(out, n.records...)
		}
		if n.date < end {
			cur = n.right
		} else {
			cur = sentinel
		}
	}
	return out
}

// ByMonth returns the records of a YYYY-MM month, ascending by date.
func (t *Tree) ByMonth(yearMonth string) []record.Record {
	start, end := record.MonthBounds(yearMonth)
	return t.Range(start, end)
}

// InOrder returns all records ascending by date. Records sharing a date keep
// their insertion order.
func (t *Tree) InOrder() []record.Record {
	t.touch("inorder")

	out := make([]record.Record, 0, t.size)
	t.walk(func(i int) {
		out = append(out, t.nodes[i].records...)
	})
	return out
}

// All is InOrder; it makes Tree an index.Index.
func (t *Tree) All() []record.Record {
	return t.InOrder()
}

// ReverseInOrder returns all records descending by date. Within a date the
// most recently inserted record comes first.
func (t *Tree) ReverseInOrder() []record.Record {
	t.touch("reverse")

	out := make([]record.Record, 0, t.size)
	var stack []int
	cur := t.root
	for cur != sentinel || len(stack) > 0 {
		for cur != sentinel {
			stack = append(stack, cur)
			cur = t.nodes[cur].right
		}
		cur = stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		recs := t.nodes[cur].records
		for j := len(recs) - 1; j >= 0; j-- {
			out = append(out, recs[j])
		}
		cur = t.nodes[cur].left
	}
	return out
}

// Len returns the number of records.
func (t *Tree) Len() int { return t.size }

// Nodes returns the number of date nodes, including empty ones.
func (t *Tree) Nodes() int { return t.nodeCount }

// Operations returns the number of public operations performed.
func (t *Tree) Operations() int { return t.ops }

// Rotations returns the number of rotations performed while rebalancing.
func (t *Tree) Rotations() int { return t.rotations }

// Height returns the number of nodes on the longest root-to-leaf path.
func (t *Tree) Height() int {
	if t.root == sentinel {
		return 0
	}

	height := 0
	level := []int{t.root}
	for len(level) > 0 {
		height++
		var next []int
		for _, i := range level {
			if l := t.nodes[i].left; l != sentinel {
				next = append(next, l)
			}
			if r := t.nodes[i].right; r != sentinel {
				next = append(next, r)
			}
		}
		level = next
	}
	return height
}

// BlackHeight counts black nodes on the leftmost path, the NIL leaf included.
func (t *Tree) BlackHeight() int {
	bh := 1
	for cur := t.root; cur != sentinel; cur = t.nodes[cur].left {
		if t.nodes[cur].color == black {
			bh++
		}
	}
	return bh
}

// Clear removes every node and resets the arena.
func (t *Tree) Clear() {
	t.nodes = t.nodes[:1]
	t.nodes[sentinel] = node{}
	t.free = t.free[:0]
	t.root = sentinel
	t.nodeCount = 0
	t.size = 0
	t.metrics.SetSize(engineName, 0)
}

var errRedRoot = errors.New("root is red")

// Validate checks the red-black and search-tree invariants.
func (t *Tree) Validate() error {
	if t.nodes[sentinel].color != black {
		return errors.New("sentinel is red")
	}
	if t.root == sentinel {
		return nil
	}
	if t.nodes[t.root].color != black {
		return errRedRoot
	}

	type frame struct {
		idx    int
		blacks int
	}

	leafBlacks := -1
	stack := []frame{{idx: t.root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := t.nodes[f.idx]
		blacks := f.blacks
		if n.color == black {
			blacks++
		}

		for _, child := range [2]int{n.left, n.right} {
			if child == sentinel {
				if leafBlacks == -1 {
					leafBlacks = blacks
				} else if leafBlacks != blacks {
					return fmt.Errorf("unequal black height at %s: %d != %d", n.date, blacks, leafBlacks)
				}
				continue
			}
			if t.nodes[child].parent != f.idx {
				return fmt.Errorf("broken parent link below %s", n.date)
			}
			if n.color == red && t.nodes[child].color == red {
				return fmt.Errorf("red node %s has a red child", n.date)
			}
			stack = append(stack, frame{idx: child, blacks: blacks})
		}
	}

	prev := ""
	first := true
	var orderErr error
	t.walk(func(i int) {
		d := t.nodes[i].date
		if !first && d <= prev && orderErr == nil {
			orderErr = fmt.Errorf("dates out of order: %s after %s", d, prev)
		}
		prev, first = d, false
	})
	return orderErr
}

func (t *Tree) touch(op string) {
	t.ops++
	t.metrics.Op(engineName, op)
}

// walk visits live nodes in ascending date order.
func (t *Tree) walk(fn func(i int)) {
	var stack []int
	cur := t.root
	for cur != sentinel || len(stack) > 0 {
		for cur != sentinel {
			stack = append(stack, cur)
			cur = t.nodes[cur].left
		}
		cur = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(cur)
		cur = t.nodes[cur].right
	}
}

func (t *Tree) find(date string) int {
	cur := t.root
	for cur != sentinel {
		switch {
		case date < t.nodes[cur].date:
			cur = t.nodes[cur].left
		case date > t.nodes[cur].date:
			cur = t.nodes[cur].right
		default:
			return cur
		}
	}
	return sentinel
}

func (t *Tree) alloc(date string) int {
	n := node{date: date, color: red}
	if k := len(t.free); k > 0 {
		i := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[i] = n
		return i
	}
	t.nodes = append(t.nodes, n)
	return len(t.nodes) - 1
}

func (t *Tree) release(i int) {
	t.nodes[i] = node{}
	t.free = append(t.free, i)
}

func (t *Tree) rotateLeft(x int) {
	n := t.nodes
	y := n[x].right

	n[x].right = n[y].left
	if n[y].left != sentinel {
		n[n[y].left].parent = x
	}

	n[y].parent = n[x].parent
	switch p := n[x].parent; {
	case p == sentinel:
		t.root = y
	case x == n[p].left:
		n[p].left = y
	default:
		n[p].right = y
	}

	n[y].left = x
	n[x].parent = y

	t.rotations++
	t.metrics.Rotation()
}

func (t *Tree) rotateRight(y int) {
	n := t.nodes
	x := n[y].left

	n[y].left = n[x].right
	if n[x].right != sentinel {
		n[n[x].right].parent = y
	}

	n[x].parent = n[y].parent
	switch p := n[y].parent; {
	case p == sentinel:
		t.root = x
	case y == n[p].left:
		n[p].left = x
	default:
		n[p].right = x
	}

	n[x].right = y
	n[y].parent = x

	t.rotations++
	t.metrics.Rotation()
}

func (t *Tree) insertFixup(z int) {
	n := t.nodes
	for n[n[z].parent].color == red {
		p := n[z].parent
		g := n[p].parent

		if p == n[g].left {
			uncle := n[g].right
			if n[uncle].color == red {
				n[p].color = black
				n[uncle].color = black
				n[g].color = red
				z = g
				continue
			}
			if z == n[p].right {
				z = p
				t.rotateLeft(z)
				p = n[z].parent
				g = n[p].parent
			}
			n[p].color = black
			n[g].color = red
			t.rotateRight(g)
		} else {
			uncle := n[g].left
			if n[uncle].color == red {
				n[p].color = black
				n[uncle].color = black
				n[g].color = red
				z = g
				continue
			}
			if z == n[p].left {
				z = p
				t.rotateRight(z)
				p = n[z].parent
				g = n[p].parent
			}
			n[p].color = black
			n[g].color = red
			t.rotateLeft(g)
		}
	}
	n[t.root].color = black
}

func (t *Tree) transplant(u, v int) {
	n := t.nodes
	switch p := n[u].parent; {
	case p == sentinel:
		t.root = v
	case u == n[p].left:
		n[p].left = v
	default:
		n[p].right = v
	}
	n[v].parent = n[u].parent
}

func (t *Tree) minimum(x int) int {
	for t.nodes[x].left != sentinel {
		x = t.nodes[x].left
	}
	return x
}

func (t *Tree) deleteNode(z int) {
	n := t.nodes

	y := z
	removed := n[y].color
	var x int

	switch {
	case n[z].left == sentinel:
		x = n[z].right
		t.transplant(z, n[z].right)
	case n[z].right == sentinel:
		x = n[z].left
		t.transplant(z, n[z].left)
	default:
		y = t.minimum(n[z].right)
		removed = n[y].color
		x = n[y].right
		if n[y].parent == z {
			n[x].parent = y
		} else {
			t.transplant(y, n[y].right)
			n[y].right = n[z].right
			n[n[y].right].parent = y
		}
		t.transplant(z, y)
		n[y].left = n[z].left
		n[n[y].left].parent = y
		n[y].color = n[z].color
	}

	if removed == black {
		t.deleteFixup(x)
	}

	t.release(z)
	n[sentinel].parent = sentinel
	n[sentinel].color = black
}

func (t *Tree) deleteFixup(x int) {
	n := t.nodes
	for x != t.root && n[x].color == black {
		p := n[x].parent
		if x == n[p].left {
			w := n[p].right
			if n[w].color == red {
				n[w].color = black
				n[p].color = red
				t.rotateLeft(p)
				w = n[p].right
			}
			if n[n[w].left].color == black && n[n[w].right].color == black {
				n[w].color = red
				x = p
				continue
			}
			if n[n[w].right].color == black {
				n[n[w].left].color = black
				n[w].color = red
				t.rotateRight(w)
				w = n[p].right
			}
			n[w].color = n[p].color
			n[p].color = black
			n[n[w].right].color = black
			t.rotateLeft(p)
			x = t.root
		} else {
			w := n[p].left
			if n[w].color == red {
				n[w].color = black
				n[p].color = red
				t.rotateRight(p)
				w = n[p].left
			}
			if n[n[w].right].color == black && n[n[w].left].color == black {
				n[w].color = red
				x = p
				continue
			}
			if n[n[w].left].color == black {
				n[n[w].right].color = black
				n[w].color = red
				t.rotateLeft(w)
				w = n[p].left
			}
			n[w].color = n[p].color
			n[p].color = black
			n[n[w].left].color = black
			t.rotateRight(p)
			x = t.root
		}
	}
	n[x].color = black
}
