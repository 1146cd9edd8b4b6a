package solver

import (
	"github.com/born-ml/pathfit/internal/buffer"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"
)

// dot returns xᵀy for contiguous vectors of equal length.
func dot[T buffer.Float](x, y []T) T {
	switch xs := any(x).(type) {
	case []float32:
		ys := any(y).([]float32)
		return T(blas32.Dot(blas32.Vector{N: len(xs), Data: xs, Inc: 1}, blas32.Vector{N: len(ys), Data: ys, Inc: 1}))
	case []float64:
		ys := any(y).([]float64)
		return T(blas64.Dot(blas64.Vector{N: len(xs), Data: xs, Inc: 1}, blas64.Vector{N: len(ys), Data: ys, Inc: 1}))
	}
	panic("unreachable")
}

// axpy computes y += alpha*x.
func axpy[T buffer.Float](alpha T, x, y []T) {
	switch xs := any(x).(type) {
	case []float32:
		ys := any(y).([]float32)
		blas32.Axpy(float32(alpha), blas32.Vector{N: len(xs), Data: xs, Inc: 1}, blas32.Vector{N: len(ys), Data: ys, Inc: 1})
	case []float64:
		ys := any(y).([]float64)
		blas64.Axpy(float64(alpha), blas64.Vector{N: len(xs), Data: xs, Inc: 1}, blas64.Vector{N: len(ys), Data: ys, Inc: 1})
	}
}

// gemv computes dst = X·beta for a rows x cols matrix stored in order.
func gemv[T buffer.Float](x []T, order buffer.Order, rows, cols int, beta, dst []T) {
	// A column-major matrix is the row-major transpose of itself.
	tr, r, c := blas.NoTrans, rows, cols
	if order == buffer.ColMajor {
		tr, r, c = blas.Trans, cols, rows
	}
	switch xs := any(x).(type) {
	case []float32:
		a := blas32.General{Rows: r, Cols: c, Stride: c, Data: xs}
		blas32.Gemv(tr, 1, a,
			blas32.Vector{N: cols, Data: any(beta).([]float32), Inc: 1}, 0,
			blas32.Vector{N: rows, Data: any(dst).([]float32), Inc: 1})
	case []float64:
		a := blas64.General{Rows: r, Cols: c, Stride: c, Data: xs}
		blas64.Gemv(tr, 1, a,
			blas64.Vector{N: cols, Data: any(beta).([]float64), Inc: 1}, 0,
			blas64.Vector{N: rows, Data: any(dst).([]float64), Inc: 1})
	}
}
