// Package introsort implements a bounded hybrid sort: quicksort with a
// median-of-three pivot and a fat partition that gathers equal keys, falling
// back to heapsort past a depth limit and to insertion sort on short ranges.
package introsort

import (
	"math/bits"

	"github.com/hed1ad/goledger/pkg/metrics"
)

// InsertionThreshold is the largest range handed to insertion sort.
const InsertionThreshold = 16

// ranges at least this long pick each pivot sample from three neighbours
const ninther = 128

// Stats counts the work done by one or more sorts.
type Stats struct {
	Partitions     int
	HeapsortCalls  int
	InsertionCalls int
	Comparisons    int
	Swaps          int
	// MaxDepth is the deepest recursion level reached.
	MaxDepth int
}

// Report adds the sub-sort counts to m.
func (s *Stats) Report(m *metrics.Metrics) {
	m.SortPath("partition", s.Partitions)
	m.SortPath("heapsort", s.HeapsortCalls)
	m.SortPath("insertion", s.InsertionCalls)
}

// DepthLimit returns the partitioning depth after which a range is
// heapsorted: 2*floor(log2 n).
func DepthLimit(n int) int {
	if n < 2 {
		return 0
	}
	return 2 * (bits.Len(uint(n)) - 1)
}

// Sort sorts data in place so that less holds between no later element and an
// earlier one. It is not stable. st may be nil.
func Sort[T any](data []T, less func(a, b T) bool, st *Stats) {
	if st == nil {
		st = &Stats{}
	}
	if len(data) < 2 {
		return
	}

	s := sorter[T]{data: data, less: less, st: st}
	s.sort(0, len(data), DepthLimit(len(data)), 0)
}

type sorter[T any] struct {
	data []T
	less func(a, b T) bool
	st   *Stats
}

func (s *sorter[T]) lt(a, b T) bool {
	s.st.Comparisons++
	return s.less(a, b)
}

func (s *sorter[T]) swap(i, j int) {
	s.st.Swaps++
	s.data[i], s.data[j] = s.data[j], s.data[i]
}

// sort orders data[lo:hi]. Only the smaller side of a partition is sorted
// recursively; the loop continues on the larger side.
func (s *sorter[T]) sort(lo, hi, depth, level int) {
	if level > s.st.MaxDepth {
		s.st.MaxDepth = level
	}

	balanced := true
	for hi-lo > InsertionThreshold {
		if depth == 0 {
			s.heapsort(lo, hi)
			return
		}
		depth--

		if !balanced {
			s.breakPatterns(lo, hi)
		}

		lt, gt := s.partition(lo, hi)
		left, right := lt-lo, hi-gt
		balanced = min(left, right) >= (hi-lo)/8
		if left < right {
			if left > 1 {
				s.sort(lo, lt, depth, level+1)
			}
			lo = gt
		} else {
			if right > 1 {
				s.sort(gt, hi, depth, level+1)
			}
			hi = lt
		}
	}

	if hi-lo > 1 {
		s.insertion(lo, hi)
	}
}

// pivot returns the index of the median of the elements at the quartiles of
// data[lo:hi]. On long ranges each quartile sample is itself the median of
// its neighbours.
func (s *sorter[T]) pivot(lo, hi int) int {
	n := hi - lo
	a, b, c := lo+n/4, lo+n/2, lo+3*n/4
	if n >= ninther {
		a = s.median(a-1, a, a+1)
		b = s.median(b-1, b, b+1)
		c = s.median(c-1, c, c+1)
	}
	return s.median(a, b, c)
}

// median returns whichever of a, b, c holds the middle value. It moves nothing.
func (s *sorter[T]) median(a, b, c int) int {
	if s.lt(s.data[b], s.data[a]) {
		a, b = b, a
	}
	if s.lt(s.data[c], s.data[b]) {
		b = c
		if s.lt(s.data[b], s.data[a]) {
			b = a
		}
	}
	return b
}

// partition splits data[lo:hi] into [lo,lt) < pivot, [lt,gt) == pivot and
// [gt,hi) > pivot. Keys equal to the pivot are parked at both ends during the
// scan and swapped into the middle afterwards, so an ascending run stays
// ascending.
func (s *sorter[T]) partition(lo, hi int) (lt, gt int) {
	s.st.Partitions++

	s.swap(lo, s.pivot(lo, hi))
	p := s.data[lo]

	a, b := lo+1, lo+1
	c, d := hi-1, hi-1
	for {
		for b <= c && !s.lt(p, s.data[b]) {
			if !s.lt(s.data[b], p) {
				s.swap(a, b)
				a++
			}
			b++
		}
		for b <= c && !s.lt(s.data[c], p) {
			if !s.lt(p, s.data[c]) {
				s.swap(c, d)
				d--
			}
			c--
		}
		if b > c {
			break
		}
		s.swap(b, c)
		b++
		c--
	}

	// [lo,a) == p, [a,b) < p, [b,d] > p, (d,hi) == p
	n := min(a-lo, b-a)
	s.swapRange(lo, b-n, n)
	n = min(d-c, hi-1-d)
	s.swapRange(b, hi-n, n)

	return lo + (b - a), hi - (d - c)
}

func (s *sorter[T]) swapRange(i, j, n int) {
	for k := 0; k < n; k++ {
		s.swap(i+k, j+k)
	}
}

// breakPatterns swaps three elements around the middle of data[lo:hi] with
// pseudo-random positions. It runs after a lopsided split so a repeating
// input shape cannot keep producing bad pivots.
func (s *sorter[T]) breakPatterns(lo, hi int) {
	n := hi - lo
	r := uint64(n)
	mask := uint64(1)<<bits.Len(uint(n)) - 1
	mid := lo + n/2
	for i := -1; i <= 1; i++ {
		r ^= r << 13
		r ^= r >> 7
		r ^= r << 17
		other := int(r & mask)
		if other >= n {
			other -= n
		}
		s.swap(mid+i, lo+other)
	}
}

func (s *sorter[T]) insertion(lo, hi int) {
	s.st.InsertionCalls++
	for i := lo + 1; i < hi; i++ {
		for j := i; j > lo && s.lt(s.data[j], s.data[j-1]); j-- {
			s.swap(j, j-1)
		}
	}
}

func (s *sorter[T]) heapsort(lo, hi int) {
	s.st.HeapsortCalls++
	n := hi - lo
	for i := n/2 - 1; i >= 0; i-- {
		s.siftDown(lo, i, n)
	}
	for end := n - 1; end > 0; end-- {
		s.swap(lo, lo+end)
		s.siftDown(lo, 0, end)
	}
}

// siftDown restores max-heap order below root in the heap data[lo:lo+n].
func (s *sorter[T]) siftDown(lo, root, n int) {
	for {
		child := 2*root + 1
		if child >= n {
			return
		}
		if child+1 < n && s.lt(s.data[lo+child], s.data[lo+child+1]) {
			child++
		}
		if !s.lt(s.data[lo+root], s.data[lo+child]) {
			return
		}
		s.swap(lo+root, lo+child)
		root = child
	}
}
