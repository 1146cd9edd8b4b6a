// Package path fits elastic-net regularization paths over a staged dataset.
package path

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/born-ml/pathfit/internal/buffer"
	"github.com/born-ml/pathfit/internal/config"
	"github.com/born-ml/pathfit/internal/parallel"
	"github.com/born-ml/pathfit/internal/solver"
	"github.com/born-ml/pathfit/internal/solvererr"
	"github.com/born-ml/pathfit/internal/stager"
)

// Problem is the declared size of a fit. It must match the staged buffers.
type Problem struct {
	Source    int
	MTrain    int
	N         int
	MValid    int
	Precision buffer.DataType
}

// ProblemOf returns the problem described by a staged dataset.
func ProblemOf(st *stager.Staged) Problem {
	return Problem{
		Source:    st.Source,
		MTrain:    st.MTrain,
		N:         st.N,
		MValid:    st.MValid,
		Precision: st.Precision,
	}
}

// Engine fits paths with a fixed configuration.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger
}

// NewEngine creates an engine. A nil logger discards.
func NewEngine(cfg config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Fit sweeps the alpha x lambda grid over the staged training rows.
//
// Every (alpha, fold) pair is one job; fold -1 fits all training rows and provides the
// training and validation RMSE, folds 0..n_folds-1 provide the cross-validation RMSE.
// Jobs run on the staged worker views and write to private slots, so the result does
// not depend on scheduling. With givefullpath the result holds every record,
// otherwise the best record of each alpha.
//
// ctx is only checked before the sweep starts.
func (e *Engine) Fit(ctx context.Context, p Problem, st *stager.Staged, givefullpath bool) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := check(p, st); err != nil {
		return nil, err
	}
	switch p.Precision {
	case buffer.Float32:
		return fit[float32](e, p, st, givefullpath)
	default:
		return fit[float64](e, p, st, givefullpath)
	}
}

func check(p Problem, st *stager.Staged) error {
	const op = "fit"
	if st == nil || st.TrainX.IsNull() || st.TrainY.IsNull() {
		return solvererr.New(solvererr.ErrMissingPair, op, "no staged training data")
	}
	if p.Precision != st.Precision {
		return solvererr.New(solvererr.ErrPrecisionMismatch, op,
			fmt.Sprintf("problem is %s but staged data is %s", p.Precision, st.Precision))
	}
	if p.Source != st.Source {
		return solvererr.Shape(op, "source", p.Source, "staged_source", st.Source)
	}
	if want := (buffer.Shape{p.MTrain, p.N}); !st.TrainX.Shape().Equal(want) {
		return solvererr.New(solvererr.ErrShapeMismatch, op,
			fmt.Sprintf("train features are %v, problem declares %v", st.TrainX.Shape(), want),
			solvererr.Dim{Name: "m_train", Value: p.MTrain}, solvererr.Dim{Name: "n", Value: p.N})
	}
	if !st.ValidX.IsNull() {
		if want := (buffer.Shape{p.MValid, p.N}); !st.ValidX.Shape().Equal(want) {
			return solvererr.New(solvererr.ErrShapeMismatch, op,
				fmt.Sprintf("valid features are %v, problem declares %v", st.ValidX.Shape(), want),
				solvererr.Dim{Name: "m_valid", Value: p.MValid}, solvererr.Dim{Name: "n", Value: p.N})
		}
	}
	return nil
}

// inputs are the host views one job reads.
type inputs[T buffer.Float] struct {
	trainX  solver.Matrix[T]
	trainY  []T
	validX  solver.Matrix[T]
	validY  []T
	weights []T
}

func viewsOf[T buffer.Float](s stager.Slots) (inputs[T], error) {
	var in inputs[T]
	var err error
	view := func(b *buffer.Buffer) []T {
		if err != nil || b.IsNull() {
			return nil
		}
		var v []T
		v, err = buffer.View[T](b)
		return v
	}
	matrix := func(b *buffer.Buffer) solver.Matrix[T] {
		data := view(b)
		if data == nil {
			return solver.Matrix[T]{}
		}
		return solver.Matrix[T]{Data: data, Rows: b.Shape()[0], Cols: b.Shape()[1], Order: b.Order()}
	}
	in.trainX = matrix(s.TrainX)
	in.trainY = view(s.TrainY)
	in.validX = matrix(s.ValidX)
	in.validY = view(s.ValidY)
	in.weights = view(s.Weights)
	return in, err
}

func fit[T buffer.Float](e *Engine, p Problem, st *stager.Staged, givefullpath bool) (*Result, error) {
	start := time.Now()
	opts := solver.Options{Intercept: st.Intercept, Standardize: e.cfg.Standardize}

	src, err := viewsOf[T](st.Slots)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	var full *solver.Design[T]
	grid := NewGrid(e.cfg, func(alpha T) T {
		if full == nil {
			full = solver.NewDesign(src.trainX, src.trainY, src.weights, solver.All(p.MTrain), opts)
		}
		return full.LambdaMax(alpha)
	})
	nA, nL := len(grid.Alphas), grid.NLambdas()
	width := p.N + RecordExtra

	folds := 0
	if e.cfg.NFolds > 1 {
		folds = min(e.cfg.NFolds, p.MTrain)
	}
	perAlpha := 1 + folds

	// Private slots: records of the full-data fit and held-out errors of each fold.
	records := make([][]T, nA)
	heldOut := make([][]T, nA*folds)

	tol, maxIter := T(e.cfg.Tolerance), e.cfg.MaxIterations
	job := func(w, j int) error {
		a, fold := j/perAlpha, j%perAlpha-1
		in, err := viewsOf[T](st.Worker(w))
		if err != nil {
			return fmt.Errorf("fit: worker %d: %w", w, err)
		}
		alpha, lambdas := grid.Alphas[a], grid.Lambdas[a]

		rows := solver.All(p.MTrain)
		if fold >= 0 {
			rows = solver.Fold(p.MTrain, fold, folds)
		}
		s := solver.New(solver.NewDesign(in.trainX, in.trainY, in.weights, rows, opts), tol, maxIter)

		coef := make([]T, p.N)
		trainPred := make([]T, p.MTrain)
		var validPred []T
		if in.validY != nil {
			validPred = make([]T, p.MValid)
		}
		if fold < 0 {
			records[a] = make([]T, nL*width)
		} else {
			heldOut[a*folds+fold] = make([]T, nL)
		}

		for l, lambda := range lambdas {
			stats := s.Solve(lambda, alpha)
			s.Coefficients(coef)
			solver.Predict(in.trainX, coef, trainPred)
			if fold >= 0 {
				heldOut[a*folds+fold][l] = solver.RMSE(trainPred, in.trainY, in.weights, rows.HoldLo, rows.HoldHi)
				continue
			}
			rec := records[a][l*width : (l+1)*width]
			copy(rec, coef)
			rec[p.N+FieldTrainRMSE] = solver.RMSE(trainPred, in.trainY, in.weights, 0, p.MTrain)
			rec[p.N+FieldCVRMSE] = T(math.NaN())
			rec[p.N+FieldValidRMSE] = T(math.NaN())
			if validPred != nil {
				solver.Predict(in.validX, coef, validPred)
				rec[p.N+FieldValidRMSE] = solver.RMSE(validPred, in.validY, nil, 0, p.MValid)
			}
			rec[p.N+FieldLambda] = lambda
			rec[p.N+FieldAlpha] = alpha
			rec[p.N+FieldTol] = stats.Delta
		}
		return nil
	}

	workers := st.Workers()
	pcfg := parallel.Config{Enabled: workers > 1, NumWorkers: workers}
	if err := parallel.Run(nA*perAlpha, job, pcfg); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	// Cross-validation RMSE is the mean held-out RMSE over folds.
	if folds > 0 {
		for a := range nA {
			for l := range nL {
				var sum T
				for f := range folds {
					sum += heldOut[a*folds+f][l]
				}
				records[a][l*width+p.N+FieldCVRMSE] = sum / T(folds)
			}
		}
	}

	layout := Layout{Full: givefullpath, NAlphas: nA, NLambdas: nL, N: p.N}
	out := make([]T, 0, layout.Shape().NumElements())
	if givefullpath {
		for l := range nL {
			for a := range nA {
				out = append(out, records[a][l*width:(l+1)*width]...)
			}
		}
	} else {
		for a := range nA {
			recs := make([][]T, nL)
			for l := range recs {
				recs[l] = records[a][l*width : (l+1)*width]
			}
			out = append(out, recs[SelectBest(recs, p.N)]...)
		}
	}
	if len(out) != layout.Shape().NumElements() {
		return nil, solvererr.New(solvererr.ErrLayoutInconsistency, "fit",
			fmt.Sprintf("assembled %d values for shape %v", len(out), layout.Shape()))
	}

	res, err := FromRecords(st.Device, out, layout)
	if err != nil {
		return nil, err
	}
	e.logger.Info("fitted path",
		"op", "fit",
		"precision", p.Precision.String(),
		"rows", p.MTrain,
		"cols", p.N,
		"alphas", nA,
		"lambdas", nL,
		"folds", folds,
		"workers", workers,
		"full", givefullpath,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
