package path

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/pathfit/internal/buffer"
	"github.com/born-ml/pathfit/internal/device"
	"github.com/born-ml/pathfit/internal/solvererr"
)

// Record layout: n coefficients followed by these trailing fields.
const (
	FieldTrainRMSE = iota // RMSE of the full-data fit on the training rows
	FieldCVRMSE           // Mean held-out RMSE over the folds
	FieldValidRMSE        // RMSE of the full-data fit on the validation rows
	FieldLambda
	FieldAlpha
	FieldTol // Convergence measure reached by the solve

	RecordExtra // Number of trailing fields
)

// Result is a fitted path: either the full path, shaped {nLambdas, nAlphas, n+6}, or
// the best record per alpha, shaped {nAlphas, n+6}.
type Result struct {
	buf      *buffer.Buffer
	full     bool
	nAlphas  int
	nLambdas int
	n        int
}

// Layout describes the shape of a Result.
type Layout struct {
	Full     bool
	NAlphas  int
	NLambdas int // Length of each lambda path walked by the fit
	N        int // Coefficients per record
}

// Shape returns the buffer shape the layout requires.
func (l Layout) Shape() buffer.Shape {
	if l.Full {
		return buffer.Shape{l.NLambdas, l.NAlphas, l.N + RecordExtra}
	}
	return buffer.Shape{l.NAlphas, l.N + RecordExtra}
}

// Rows returns the number of records per alpha: NLambdas for a full path, 1 otherwise.
func (l Layout) Rows() int {
	if l.Full {
		return l.NLambdas
	}
	return 1
}

// checkLayout verifies that shape holds records of n+6 fields for the layout.
func checkLayout(op string, shape buffer.Shape, l Layout) error {
	want := l.Shape()
	if len(shape) != len(want) {
		return solvererr.New(solvererr.ErrLayoutInconsistency, op,
			fmt.Sprintf("result of rank %d, want %d", len(shape), len(want)),
			solvererr.Dim{Name: "rank", Value: len(shape)})
	}
	width := shape[len(shape)-1]
	if width != l.N+RecordExtra {
		return solvererr.New(solvererr.ErrLayoutInconsistency, op,
			fmt.Sprintf("record width must be n+%d", RecordExtra),
			solvererr.Dim{Name: "record_width", Value: width}, solvererr.Dim{Name: "n", Value: l.N})
	}
	if !shape.Equal(want) {
		return solvererr.New(solvererr.ErrLayoutInconsistency, op,
			fmt.Sprintf("result shape %v, want %v", shape, want))
	}
	return nil
}

// Wrap takes ownership of buf as a Result with layout l.
func Wrap(buf *buffer.Buffer, l Layout) (*Result, error) {
	if buf.IsNull() {
		return nil, solvererr.New(solvererr.ErrLayoutInconsistency, "wrap", "null result buffer")
	}
	if err := checkLayout("wrap", buf.Shape(), l); err != nil {
		return nil, err
	}
	return &Result{buf: buf, full: l.Full, nAlphas: l.NAlphas, nLambdas: l.NLambdas, n: l.N}, nil
}

// FromRecords uploads host records laid out for l to dev.
func FromRecords[T buffer.Float](dev device.Device, records []T, l Layout) (*Result, error) {
	if len(records) != l.Shape().NumElements() {
		return nil, solvererr.New(solvererr.ErrLayoutInconsistency, "fit",
			fmt.Sprintf("%d record values do not fill shape %v", len(records), l.Shape()))
	}
	buf, err := buffer.FromSlice(dev, records, l.Shape(), buffer.RowMajor)
	if err != nil {
		return nil, fmt.Errorf("upload path result: %w", err)
	}
	r, err := Wrap(buf, l)
	if err != nil {
		_ = buf.Free()
		return nil, err
	}
	return r, nil
}

// Layout returns the result layout.
func (r *Result) Layout() Layout {
	return Layout{Full: r.full, NAlphas: r.nAlphas, NLambdas: r.nLambdas, N: r.n}
}

// Full reports whether r holds the full path.
func (r *Result) Full() bool { return r.full }

// NAlphas returns the alpha grid size.
func (r *Result) NAlphas() int { return r.nAlphas }

// NLambdas returns the lambda path length.
func (r *Result) NLambdas() int { return r.nLambdas }

// N returns the number of coefficients per record.
func (r *Result) N() int { return r.n }

// Precision returns the precision of every stored value.
func (r *Result) Precision() buffer.DataType { return r.buf.DType() }

// Buffer returns the backing buffer.
func (r *Result) Buffer() *buffer.Buffer { return r.buf }

// Device returns the device holding the result.
func (r *Result) Device() device.Device { return r.buf.Device() }

// Free releases the backing buffer. Freeing twice is a no-op.
func (r *Result) Free() error {
	if err := r.buf.Free(); err != nil && !errors.Is(err, buffer.ErrFreed) {
		return err
	}
	return nil
}

// Freed reports whether the result was released.
func (r *Result) Freed() bool { return r.buf.Freed() }

// Views gives typed, zero-copy access to the records of a Result. Slices returned by its
// methods alias the result buffer and are valid until the result is freed.
type Views[T buffer.Float] struct {
	Layout
	data []T
}

// ViewsOf returns typed views of r.
func ViewsOf[T buffer.Float](r *Result) (Views[T], error) {
	data, err := buffer.View[T](r.buf)
	if err != nil {
		return Views[T]{}, fmt.Errorf("path result views: %w", err)
	}
	return Views[T]{Layout: r.Layout(), data: data}, nil
}

// Record returns the record of (row, alpha). For best-per-alpha results row must be 0.
func (v Views[T]) Record(row, a int) []T {
	width := v.N + RecordExtra
	off := (row*v.NAlphas + a) * width
	return v.data[off : off+width : off+width]
}

// Coefficients returns the coefficients of (row, alpha).
func (v Views[T]) Coefficients(row, a int) []T {
	return v.Record(row, a)[:v.N]
}

// RMSE returns the train, cross-validation and validation RMSE of (row, alpha).
func (v Views[T]) RMSE(row, a int) []T {
	return v.Record(row, a)[v.N+FieldTrainRMSE : v.N+FieldValidRMSE+1]
}

// Lambda returns the lambda of (row, alpha).
func (v Views[T]) Lambda(row, a int) T { return v.Record(row, a)[v.N+FieldLambda] }

// Alpha returns the alpha of (row, alpha).
func (v Views[T]) Alpha(row, a int) T { return v.Record(row, a)[v.N+FieldAlpha] }

// Tol returns the convergence measure of (row, alpha).
func (v Views[T]) Tol(row, a int) T { return v.Record(row, a)[v.N+FieldTol] }

// Best returns the row of the best record of alpha a. Best-per-alpha results always
// return 0.
func (v Views[T]) Best(a int) int {
	if !v.Full {
		return 0
	}
	recs := make([][]T, v.NLambdas)
	for l := range recs {
		recs[l] = v.Record(l, a)
	}
	return SelectBest(recs, v.N)
}

// SelectBest returns the index of the record with the lowest selection error: the
// validation RMSE when any record of the path carries one, the training RMSE
// otherwise. NaN errors rank last and ties resolve to the lowest index.
func SelectBest[T buffer.Float](records [][]T, n int) int {
	field := n + FieldTrainRMSE
	for _, r := range records {
		if !math.IsNaN(float64(r[n+FieldValidRMSE])) {
			field = n + FieldValidRMSE
			break
		}
	}
	best, bestErr := 0, math.Inf(1)
	for i, r := range records {
		e := float64(r[field])
		if math.IsNaN(e) {
			e = math.Inf(1)
		}
		if e < bestErr {
			best, bestErr = i, e
		}
	}
	return best
}
