// Package predict applies fitted path coefficients to staged feature matrices.
package predict

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/born-ml/pathfit/internal/buffer"
	"github.com/born-ml/pathfit/internal/parallel"
	"github.com/born-ml/pathfit/internal/path"
	"github.com/born-ml/pathfit/internal/solver"
	"github.com/born-ml/pathfit/internal/solvererr"
	"github.com/born-ml/pathfit/internal/stager"
)

// Result holds predictions shaped {nLambdas, nAlphas, m} for a full path or
// {nAlphas, m} for the best record per alpha.
type Result struct {
	buf      *buffer.Buffer
	full     bool
	nAlphas  int
	nLambdas int
	m        int
}

// Full reports whether r holds one prediction vector per path record.
func (r *Result) Full() bool { return r.full }

// NAlphas returns the alpha count.
func (r *Result) NAlphas() int { return r.nAlphas }

// Rows returns the number of prediction vectors per alpha.
func (r *Result) Rows() int {
	if r.full {
		return r.nLambdas
	}
	return 1
}

// M returns the number of predicted rows.
func (r *Result) M() int { return r.m }

// Buffer returns the backing buffer.
func (r *Result) Buffer() *buffer.Buffer { return r.buf }

// Free releases the predictions. Freeing twice is a no-op.
func (r *Result) Free() error {
	if err := r.buf.Free(); err != nil && !errors.Is(err, buffer.ErrFreed) {
		return err
	}
	return nil
}

// Freed reports whether the predictions were released.
func (r *Result) Freed() bool { return r.buf.Freed() }

// Values returns the predictions of (row, alpha) as a view of the result buffer.
func Values[T buffer.Float](r *Result, row, a int) ([]T, error) {
	data, err := buffer.View[T](r.buf)
	if err != nil {
		return nil, fmt.Errorf("predictions: %w", err)
	}
	off := (row*r.nAlphas + a) * r.m
	return data[off : off+r.m : off+r.m], nil
}

// Engine runs predictions.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an engine. A nil logger discards.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{logger: logger}
}

// Predict computes validation-row predictions from model. Model coefficients are only
// read. A full-path prediction needs a full-path model; a best-per-alpha prediction
// from a full-path model uses the record path.SelectBest picks.
// Every call returns a new Result.
func (e *Engine) Predict(model *path.Result, st *stager.Staged, givefullpath bool) (*Result, error) {
	const op = "predict"
	if model == nil || model.Freed() {
		return nil, solvererr.New(solvererr.ErrNoTrainedModel, op, "fit a path first")
	}
	if givefullpath && !model.Full() {
		return nil, solvererr.New(solvererr.ErrNoTrainedModel, op, "full-path predictions need a full-path model")
	}
	if st == nil || st.ValidX.IsNull() {
		return nil, solvererr.New(solvererr.ErrMissingPair, op, "no staged valid features")
	}
	if st.Precision != model.Precision() {
		return nil, solvererr.New(solvererr.ErrPrecisionMismatch, op,
			fmt.Sprintf("model is %s but staged data is %s", model.Precision(), st.Precision))
	}
	if st.N != model.N() {
		return nil, solvererr.Shape(op, "model_n", model.N(), "valid_cols", st.N)
	}

	start := time.Now()
	var (
		res *Result
		err error
	)
	if st.Precision == buffer.Float32 {
		res, err = run[float32](model, st, givefullpath)
	} else {
		res, err = run[float64](model, st, givefullpath)
	}
	if err != nil {
		return nil, err
	}
	e.logger.Info("predicted",
		"op", op,
		"precision", st.Precision.String(),
		"rows", st.MValid,
		"alphas", res.nAlphas,
		"full", givefullpath,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func run[T buffer.Float](model *path.Result, st *stager.Staged, givefullpath bool) (*Result, error) {
	coefs, err := path.ViewsOf[T](model)
	if err != nil {
		return nil, err
	}
	nA, m := model.NAlphas(), st.MValid
	res := &Result{full: givefullpath, nAlphas: nA, nLambdas: model.NLambdas(), m: m}
	rows := res.Rows()
	out := make([]T, rows*nA*m)

	// Row of the model record each output row reads.
	source := func(row, a int) int {
		if givefullpath {
			return row
		}
		return coefs.Best(a)
	}

	workers := st.Workers()
	err = parallel.ForGrid(rows, nA, func(w, row, a int) error {
		slots := st.Worker(w)
		data, err := buffer.View[T](slots.ValidX)
		if err != nil {
			return err
		}
		x := solver.Matrix[T]{Data: data, Rows: m, Cols: st.N, Order: slots.ValidX.Order()}
		k := row*nA + a
		solver.Predict(x, coefs.Coefficients(source(row, a), a), out[k*m:(k+1)*m])
		return nil
	}, parallel.Config{Enabled: workers > 1, NumWorkers: workers})
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	shape := buffer.Shape{nA, m}
	if givefullpath {
		shape = buffer.Shape{rows, nA, m}
	}
	res.buf, err = buffer.FromSlice(st.Device, out, shape, buffer.RowMajor)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return res, nil
}
