package stager

import (
	"fmt"

	"github.com/born-ml/pathfit/internal/buffer"
)

// Matrix is a host-resident 2D input. Data is a []float32 or []float64 holding
// Rows*Cols elements in Order.
type Matrix struct {
	Rows  int
	Cols  int
	Order buffer.Order
	Data  any
}

// NewMatrix wraps data as a rows x cols matrix.
func NewMatrix[T buffer.Float](rows, cols int, order buffer.Order, data []T) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Order: order, Data: data}
}

// Vector is a host-resident 1D input (targets or weights).
type Vector struct {
	Data any
}

// NewVector wraps data as a vector.
func NewVector[T buffer.Float](data []T) *Vector {
	return &Vector{Data: data}
}

// Dataset is the set of host inputs of one stage call. Nil fields are not provided.
type Dataset struct {
	TrainX  *Matrix
	TrainY  *Vector
	ValidX  *Matrix
	ValidY  *Vector
	Weights *Vector
}

// elementWidth returns the byte width of a []float32 / []float64 payload.
func elementWidth(data any) (int, int, error) {
	switch d := data.(type) {
	case []float32:
		return 4, len(d), nil
	case []float64:
		return 8, len(d), nil
	default:
		return 0, 0, fmt.Errorf("unsupported element type %T", data)
	}
}

// withIntercept returns the matrix data as []T, appending a constant-one column when
// intercept is set. The result keeps the input order.
func withIntercept[T buffer.Float](m *Matrix, intercept bool) []T {
	src := m.Data.([]T)
	if !intercept {
		return src
	}
	cols := m.Cols + 1
	out := make([]T, m.Rows*cols)
	if m.Order == buffer.ColMajor {
		copy(out, src)
		for i := range m.Rows {
			out[m.Cols*m.Rows+i] = 1
		}
		return out
	}
	for i := range m.Rows {
		copy(out[i*cols:i*cols+m.Cols], src[i*m.Cols:(i+1)*m.Cols])
		out[i*cols+m.Cols] = 1
	}
	return out
}
