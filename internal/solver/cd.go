package solver

import (
	"math"

	"github.com/born-ml/pathfit/internal/buffer"
)

// Stats describes one Solve call.
type Stats[T buffer.Float] struct {
	Iterations int
	Delta      T // Largest coefficient change of the last sweep, relative to the largest coefficient
	Converged  bool
}

// Solver runs coordinate descent on one design. Successive Solve calls warm start
// from the previous coefficients.
type Solver[T buffer.Float] struct {
	d       *Design[T]
	beta    []T // coefficients on the design scale
	resid   []T // y - X·beta
	tol     T
	maxIter int
}

// New creates a solver starting from zero coefficients.
func New[T buffer.Float](d *Design[T], tol T, maxIter int) *Solver[T] {
	return &Solver[T]{
		d:       d,
		beta:    make([]T, d.n),
		resid:   append([]T(nil), d.y...),
		tol:     tol,
		maxIter: max(maxIter, 1),
	}
}

func softThreshold[T buffer.Float](z, gamma T) T {
	switch {
	case z > gamma:
		return z - gamma
	case z < -gamma:
		return z + gamma
	default:
		return 0
	}
}

// Solve minimizes the objective at (lambda, alpha) until the relative coefficient
// change of a sweep is at most the tolerance or the sweep limit is reached.
func (s *Solver[T]) Solve(lambda, alpha T) Stats[T] {
	d := s.d
	var st Stats[T]
	if d.m == 0 {
		st.Converged = true
		return st
	}
	l1 := lambda * alpha
	l2 := lambda * (1 - alpha)
	inv := 1 / T(d.m)

	for st.Iterations < s.maxIter {
		st.Iterations++
		var maxChange, maxAbs T
		for j := range d.n {
			cn := d.colNorm[j]
			if cn == 0 {
				continue
			}
			c := d.col(j)
			old := s.beta[j]
			rho := dot(c, s.resid)*inv + cn*old

			var next T
			if d.penalized[j] {
				next = softThreshold(rho, l1) / (cn + l2)
			} else {
				next = rho / cn
			}
			if next != old {
				axpy(old-next, c, s.resid)
				s.beta[j] = next
			}
			maxChange = max(maxChange, T(math.Abs(float64(next-old))))
			maxAbs = max(maxAbs, T(math.Abs(float64(next))))
		}
		st.Delta = maxChange / max(maxAbs, 1)
		if st.Delta <= s.tol {
			st.Converged = true
			break
		}
	}
	return st
}

// Coefficients writes the current coefficients, mapped back to the scale of the input
// features, into dst[:Cols()].
func (s *Solver[T]) Coefficients(dst []T) {
	for j, b := range s.beta {
		dst[j] = b / s.d.scale[j]
	}
}
