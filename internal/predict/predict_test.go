package predict

import (
	"context"
	"testing"

	"github.com/born-ml/pathfit/internal/buffer"
	"github.com/born-ml/pathfit/internal/config"
	"github.com/born-ml/pathfit/internal/device"
	"github.com/born-ml/pathfit/internal/device/cpu"
	"github.com/born-ml/pathfit/internal/path"
	"github.com/born-ml/pathfit/internal/solvererr"
	"github.com/born-ml/pathfit/internal/stager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	trainX = []float64{1, 0, 0, 1, 1, 1, 2, 1, 1, 2, 3, 1}
	trainY = []float64{1, 2, 3.5, 4, 5.5, 7}
	validX = []float64{0, 0, 1, 1, 2, 2}
	validY = []float64{0.5, 3, 6}
)

type fixture struct {
	devices *device.Set
	model   *path.Result
	valid   *stager.Staged
}

func newFixture(t *testing.T, full bool) *fixture {
	t.Helper()
	set, err := cpu.NewSet(2)
	require.NoError(t, err)
	opts := stager.Options{Shared: true, Intercept: true, Workers: 3}

	fitStager := stager.New(set, opts)
	st, err := fitStager.Stage(0, stager.Dataset{
		TrainX: stager.NewMatrix(6, 2, buffer.RowMajor, trainX),
		TrainY: stager.NewVector(trainY),
		ValidX: stager.NewMatrix(3, 2, buffer.RowMajor, validX),
		ValidY: stager.NewVector(validY),
	}, stager.ModeFit)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.NAlphas = 2
	cfg.NLambdas = 5
	cfg.LambdaMinRatio = 1e-4
	model, err := path.NewEngine(cfg, nil).Fit(context.Background(), path.ProblemOf(st), st, full)
	require.NoError(t, err)

	predictStager := stager.New(set, opts)
	valid, err := predictStager.Stage(0, stager.Dataset{
		ValidX: stager.NewMatrix(3, 2, buffer.RowMajor, validX),
	}, stager.ModePredict)
	require.NoError(t, err)
	return &fixture{devices: set, model: model, valid: valid}
}

func dot(x []float64, cols int, row int, coef []float64) float64 {
	var s float64
	for j := range cols {
		s += x[row*cols+j] * coef[j]
	}
	return s + coef[cols]
}

func TestPredict_FullPath(t *testing.T) {
	f := newFixture(t, true)
	res, err := NewEngine(nil).Predict(f.model, f.valid, true)
	require.NoError(t, err)
	assert.Equal(t, buffer.Shape{5, 2, 3}, res.Buffer().Shape())
	assert.Equal(t, 5, res.Rows())

	v, err := path.ViewsOf[float64](f.model)
	require.NoError(t, err)
	for l := range 5 {
		for a := range 2 {
			got, err := Values[float64](res, l, a)
			require.NoError(t, err)
			coef := v.Coefficients(l, a)
			for i := range 3 {
				assert.InDelta(t, dot(validX, 2, i, coef), got[i], 1e-12)
			}
		}
	}
}

func TestPredict_BestFromFullModel(t *testing.T) {
	full := newFixture(t, true)
	best := newFixture(t, false)

	e := NewEngine(nil)
	fromFull, err := e.Predict(full.model, full.valid, false)
	require.NoError(t, err)
	fromBest, err := e.Predict(best.model, best.valid, false)
	require.NoError(t, err)

	assert.Equal(t, buffer.Shape{2, 3}, fromFull.Buffer().Shape())
	a, err := buffer.Download[float64](fromFull.Buffer())
	require.NoError(t, err)
	b, err := buffer.Download[float64](fromBest.Buffer())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPredict_RepeatedCallsDoNotAlias(t *testing.T) {
	f := newFixture(t, true)
	before, err := buffer.Download[float64](f.model.Buffer())
	require.NoError(t, err)

	e := NewEngine(nil)
	first, err := e.Predict(f.model, f.valid, true)
	require.NoError(t, err)
	second, err := e.Predict(f.model, f.valid, false)
	require.NoError(t, err)

	assert.False(t, first.Buffer().SameStorage(second.Buffer()))
	assert.False(t, first.Freed())

	after, err := buffer.Download[float64](f.model.Buffer())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	require.NoError(t, second.Free())
	require.NoError(t, second.Free())
	v, err := Values[float64](first, 0, 0)
	require.NoError(t, err)
	assert.Len(t, v, 3)
}

func TestPredict_NoTrainedModel(t *testing.T) {
	f := newFixture(t, false)
	e := NewEngine(nil)

	_, err := e.Predict(nil, f.valid, false)
	assert.ErrorIs(t, err, solvererr.ErrNoTrainedModel)

	_, err = e.Predict(f.model, f.valid, true)
	assert.ErrorIs(t, err, solvererr.ErrNoTrainedModel)

	require.NoError(t, f.model.Free())
	_, err = e.Predict(f.model, f.valid, false)
	assert.ErrorIs(t, err, solvererr.ErrNoTrainedModel)
}

func TestPredict_InputChecks(t *testing.T) {
	f := newFixture(t, true)
	e := NewEngine(nil)

	_, err := e.Predict(f.model, nil, true)
	assert.ErrorIs(t, err, solvererr.ErrMissingPair)

	narrow, err := stager.New(f.devices, stager.Options{}).Stage(0, stager.Dataset{
		ValidX: stager.NewMatrix(3, 2, buffer.RowMajor, validX),
	}, stager.ModePredict)
	require.NoError(t, err)
	_, err = e.Predict(f.model, narrow, true)
	assert.ErrorIs(t, err, solvererr.ErrShapeMismatch)

	single, err := stager.New(f.devices, stager.Options{Intercept: true}).Stage(0, stager.Dataset{
		ValidX: stager.NewMatrix(1, 2, buffer.RowMajor, []float32{1, 2}),
	}, stager.ModePredict)
	require.NoError(t, err)
	_, err = e.Predict(f.model, single, true)
	assert.ErrorIs(t, err, solvererr.ErrPrecisionMismatch)
}
