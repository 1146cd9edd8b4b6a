// Package solver implements weighted elastic-net coordinate descent for one problem
// in float32 or float64.
//
// The objective for rows i with weights w_i is
//
//	1/(2M) Σ w_i (y_i - x_iᵀβ)² + λ((1-α)/2 ||β||² + α||β||₁)
//
// where M is the number of rows and the intercept column, when present, is not
// penalized.
package solver

import (
	"math"

	"github.com/born-ml/pathfit/internal/buffer"
	"gonum.org/v1/gonum/stat"
)

// Rows selects the training rows of a design: every row of [0, Total) except the
// held-out block [HoldLo, HoldHi).
type Rows struct {
	Total  int
	HoldLo int
	HoldHi int
}

// All selects every row of a matrix with m rows.
func All(m int) Rows {
	return Rows{Total: m}
}

// Fold returns the contiguous block of rows held out by fold k of nFolds.
func Fold(m, k, nFolds int) Rows {
	return Rows{Total: m, HoldLo: k * m / nFolds, HoldHi: (k + 1) * m / nFolds}
}

// Count returns the number of selected rows.
func (r Rows) Count() int {
	return r.Total - (r.HoldHi - r.HoldLo)
}

// Held reports whether row i is held out.
func (r Rows) Held(i int) bool {
	return i >= r.HoldLo && i < r.HoldHi
}

// Options controls how a design is built.
type Options struct {
	Intercept   bool // Last column is the unpenalized constant column
	Standardize bool // Scale penalized columns to unit weighted standard deviation
}

// Matrix is a read-only host view of a staged feature matrix.
type Matrix[T buffer.Float] struct {
	Data  []T
	Rows  int
	Cols  int
	Order buffer.Order
}

// At returns element (i, j).
func (m Matrix[T]) At(i, j int) T {
	return m.Data[buffer.Index(m.Order, m.Rows, m.Cols, i, j)]
}

// Design is the column-major, weight-scaled copy of the selected training rows that
// coordinate descent runs on.
type Design[T buffer.Float] struct {
	m, n      int
	cols      []T // m*n, column j at [j*m, (j+1)*m)
	y         []T
	colNorm   []T // x_jᵀx_j / m
	scale     []T // divisor applied to column j
	penalized []bool
}

// NewDesign builds the design for rows of x. Weights may be nil.
func NewDesign[T buffer.Float](x Matrix[T], y, weights []T, rows Rows, opts Options) *Design[T] {
	m, n := rows.Count(), x.Cols
	d := &Design[T]{
		m:         m,
		n:         n,
		cols:      make([]T, m*n),
		y:         make([]T, m),
		colNorm:   make([]T, n),
		scale:     make([]T, n),
		penalized: make([]bool, n),
	}
	for j := range n {
		d.scale[j] = 1
		d.penalized[j] = !(opts.Intercept && j == n-1)
	}

	sqrtW := make([]T, m)
	k := 0
	for i := range rows.Total {
		if rows.Held(i) {
			continue
		}
		sqrtW[k] = 1
		if weights != nil {
			sqrtW[k] = T(math.Sqrt(float64(weights[i])))
		}
		d.y[k] = sqrtW[k] * y[i]
		k++
	}

	if opts.Standardize {
		d.standardize(x, weights, rows)
	}

	for j := range n {
		col := d.cols[j*m : (j+1)*m]
		k := 0
		for i := range rows.Total {
			if rows.Held(i) {
				continue
			}
			col[k] = sqrtW[k] * x.At(i, j) / d.scale[j]
			k++
		}
		if m > 0 {
			d.colNorm[j] = dot(col, col) / T(m)
		}
	}
	return d
}

// standardize sets scale to the weighted population standard deviation of each
// penalized column. Constant columns keep scale 1.
func (d *Design[T]) standardize(x Matrix[T], weights []T, rows Rows) {
	xs := make([]float64, 0, d.m)
	var ws []float64
	if weights != nil {
		ws = make([]float64, 0, d.m)
		for i := range rows.Total {
			if !rows.Held(i) {
				ws = append(ws, float64(weights[i]))
			}
		}
	}
	for j := range d.n {
		if !d.penalized[j] {
			continue
		}
		xs = xs[:0]
		for i := range rows.Total {
			if !rows.Held(i) {
				xs = append(xs, float64(x.At(i, j)))
			}
		}
		_, variance := stat.PopMeanVariance(xs, ws)
		if sd := math.Sqrt(variance); sd > 0 && !math.IsNaN(sd) {
			d.scale[j] = T(sd)
		}
	}
}

// Rows returns the number of rows in the design.
func (d *Design[T]) Rows() int {
	return d.m
}

// Cols returns the number of columns in the design.
func (d *Design[T]) Cols() int {
	return d.n
}

func (d *Design[T]) col(j int) []T {
	return d.cols[j*d.m : (j+1)*d.m]
}

// residualAtZero returns y minus the least-squares fit of the unpenalized columns,
// the residual every path starts from at lambda max.
func (d *Design[T]) residualAtZero() []T {
	r := append([]T(nil), d.y...)
	for j := range d.n {
		if d.penalized[j] || d.colNorm[j] == 0 {
			continue
		}
		c := d.col(j)
		axpy(-dot(c, r)/(T(d.m)*d.colNorm[j]), c, r)
	}
	return r
}

// LambdaMax returns the smallest lambda at which every penalized coefficient is zero
// for mixing weight alpha. Alpha is floored at 1e-3 so ridge-like paths stay finite.
func (d *Design[T]) LambdaMax(alpha T) T {
	if d.m == 0 {
		return 0
	}
	r := d.residualAtZero()
	var best T
	for j := range d.n {
		if !d.penalized[j] {
			continue
		}
		if g := T(math.Abs(float64(dot(d.col(j), r)))); g > best {
			best = g
		}
	}
	return best / (T(d.m) * max(alpha, 1e-3))
}
