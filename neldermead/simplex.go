package neldermead

import (
	"slices"

	"go.viam.com/multiview/utils"
)

// simplex holds n+1 vertices of dimension n in one contiguous buffer. order maps rank (0 = best)
// to the vertex row in buf.
type simplex[T utils.Float] struct {
	n      int
	buf    []T
	values []T
	order  []int
}

func newSimplex[T utils.Float](f Objective[T], x0 []T, delta, deltaZero T) *simplex[T] {
	n := len(x0)
	s := &simplex[T]{
		n:      n,
		buf:    make([]T, (n+1)*n),
		values: make([]T, n+1),
		order:  make([]int, n+1),
	}
	for v := 0; v <= n; v++ {
		row := s.row(v)
		copy(row, x0)
		if v > 0 {
			i := v - 1
			if row[i] != 0 {
				row[i] *= 1 + delta
			} else {
				row[i] = deltaZero
			}
		}
		s.values[v] = f(row)
		s.order[v] = v
	}
	return s
}

func (s *simplex[T]) row(v int) []T {
	return s.buf[v*s.n : (v+1)*s.n]
}

// vertex returns the vertex of the given rank after the last sort.
func (s *simplex[T]) vertex(rank int) []T {
	return s.row(s.order[rank])
}

func (s *simplex[T]) value(rank int) T {
	return s.values[s.order[rank]]
}

// sort orders the vertices by ascending objective value. The sort is stable so ties keep their
// previous ranking.
func (s *simplex[T]) sort() {
	slices.SortStableFunc(s.order, func(a, b int) int {
		switch va, vb := s.values[a], s.values[b]; {
		case va < vb:
			return -1
		case va > vb:
			return 1
		}
		return 0
	})
}

// replace overwrites the vertex of the given rank.
func (s *simplex[T]) replace(rank int, x []T, value T) {
	copy(s.vertex(rank), x)
	s.values[s.order[rank]] = value
}

// centroid writes the mean of the first k ranked vertices into dst.
func (s *simplex[T]) centroid(dst []T, k int) {
	for j := range dst {
		dst[j] = 0
	}
	for rank := 0; rank < k; rank++ {
		for j, x := range s.vertex(rank) {
			dst[j] += x
		}
	}
	for j := range dst {
		dst[j] /= T(k)
	}
}

// shrink moves every vertex except the best toward the best by factor sigma and re-evaluates.
func (s *simplex[T]) shrink(f Objective[T], sigma T) {
	best := s.vertex(0)
	for rank := 1; rank <= s.n; rank++ {
		x := s.vertex(rank)
		for j := range x {
			x[j] = best[j] + sigma*(x[j]-best[j])
		}
		s.values[s.order[rank]] = f(x)
	}
}

// valueSpread is the difference between the worst and best values.
func (s *simplex[T]) valueSpread() T {
	return s.value(s.n) - s.value(0)
}

// coordinateSpread is the largest per-coordinate range across all vertices.
func (s *simplex[T]) coordinateSpread() T {
	var spread T
	for j := 0; j < s.n; j++ {
		lo, hi := s.row(0)[j], s.row(0)[j]
		for v := 1; v <= s.n; v++ {
			x := s.row(v)[j]
			if x < lo {
				lo = x
			}
			if x > hi {
				hi = x
			}
		}
		if hi-lo > spread {
			spread = hi - lo
		}
	}
	return spread
}
