package session

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/born-ml/pathfit/internal/buffer"
	"github.com/born-ml/pathfit/internal/config"
	"github.com/born-ml/pathfit/internal/device"
	"github.com/born-ml/pathfit/internal/device/cpu"
	"github.com/born-ml/pathfit/internal/device/webgpu"
	"github.com/born-ml/pathfit/internal/path"
	"github.com/born-ml/pathfit/internal/predict"
	"github.com/born-ml/pathfit/internal/solvererr"
	"github.com/born-ml/pathfit/internal/stager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	trainX = []float64{1, 0, 0, 1, 1, 1, 2, 1, 1, 2, 3, 1, 4, 0, 0, 3}
	trainY = []float64{1, 2, 3.5, 4, 5.5, 7, 6, 5.5}
	validX = []float64{0, 0, 1, 1, 2, 2}
	validY = []float64{0.5, 3, 6}
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.NAlphas = 2
	cfg.NLambdas = 4
	cfg.LambdaMinRatio = 1e-3
	cfg.NFolds = 2
	cfg.Workers = 3
	cfg.Devices = 2
	return cfg
}

func dataset() stager.Dataset {
	return stager.Dataset{
		TrainX: stager.NewMatrix(8, 2, buffer.RowMajor, trainX),
		TrainY: stager.NewVector(trainY),
		ValidX: stager.NewMatrix(3, 2, buffer.RowMajor, validX),
		ValidY: stager.NewVector(validY),
	}
}

func newSession(t *testing.T, cfg config.Config) (*Session, *device.Set) {
	t.Helper()
	set, err := cpu.NewSet(cfg.Devices)
	require.NoError(t, err)
	s, err := New(cfg, WithDevices(set))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, set
}

func TestTeardownPhases(t *testing.T) {
	s, devs := newSession(t, testConfig())
	ctx := context.Background()

	model, err := s.Fit(ctx, dataset(), true)
	require.NoError(t, err)
	pred, err := s.Predict(ctx, stager.NewMatrix(3, 2, buffer.RowMajor, validX), nil, true)
	require.NoError(t, err)
	assert.Equal(t, PhaseInputs|PhasePath|PhasePredictions, s.Live())

	// Predict staging replaced the training upload: one valid features buffer, the
	// model and one prediction.
	assert.Equal(t, 3, devs.Stats().ActiveBuffers)

	require.NoError(t, s.ReleaseInputs())
	assert.Nil(t, s.Staged())
	assert.Equal(t, PhasePath|PhasePredictions, s.Live())
	assert.False(t, model.Freed())
	assert.False(t, pred.Freed())
	v, err := path.ViewsOf[float64](model)
	require.NoError(t, err)
	assert.Len(t, v.Coefficients(0, 0), 3)

	require.NoError(t, s.ReleasePathResult())
	assert.True(t, model.Freed())
	assert.False(t, pred.Freed())
	_, err = predict.Values[float64](pred, 0, 0)
	require.NoError(t, err)

	require.NoError(t, s.ReleasePredictions())
	assert.True(t, pred.Freed())
	assert.Equal(t, Phase(0), s.Live())
	assert.Equal(t, 0, devs.Stats().ActiveBuffers)
	assert.Equal(t, "none", s.Live().String())
}

func TestPathTeardownLeavesInputs(t *testing.T) {
	s, devs := newSession(t, testConfig())
	st, err := s.Stage(dataset())
	require.NoError(t, err)
	stagedBuffers := devs.Stats().ActiveBuffers
	require.Equal(t, 4, stagedBuffers)

	model, err := s.FitStaged(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, stagedBuffers+1, devs.Stats().ActiveBuffers)

	require.NoError(t, s.ReleasePathResult())
	assert.True(t, model.Freed())
	assert.Same(t, st, s.Staged())
	assert.NotZero(t, s.Live()&PhaseInputs)
	for _, b := range []*buffer.Buffer{st.TrainX, st.TrainY, st.ValidX, st.ValidY} {
		assert.False(t, b.Freed())
	}
	assert.Equal(t, stagedBuffers, devs.Stats().ActiveBuffers)

	frees := devs.Stats().Frees
	require.NoError(t, s.ReleaseInputs())
	assert.Equal(t, frees+int64(stagedBuffers), devs.Stats().Frees)
	assert.Nil(t, s.Staged())
	assert.Equal(t, 0, devs.Stats().ActiveBuffers)

	require.NoError(t, s.ReleaseInputs())
	assert.Equal(t, frees+int64(stagedBuffers), devs.Stats().Frees)
}

func TestTeardownIsIdempotent(t *testing.T) {
	s, devs := newSession(t, testConfig())
	for range 2 {
		require.NoError(t, s.ReleaseInputs())
		require.NoError(t, s.ReleasePathResult())
		require.NoError(t, s.ReleasePredictions())
	}

	_, _, err := s.FitPredict(context.Background(), dataset(), false)
	require.NoError(t, err)
	for range 2 {
		require.NoError(t, s.ReleasePredictions())
		require.NoError(t, s.ReleasePathResult())
		require.NoError(t, s.ReleaseInputs())
	}
	assert.Equal(t, 0, devs.Stats().ActiveBuffers)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Fit(context.Background(), dataset(), false)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseReleasesEverything(t *testing.T) {
	s, devs := newSession(t, testConfig())
	ctx := context.Background()
	_, _, err := s.FitPredict(ctx, dataset(), true)
	require.NoError(t, err)
	_, err = s.Predict(ctx, stager.NewMatrix(3, 2, buffer.RowMajor, validX), nil, false)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.Equal(t, Phase(0), s.Live())
	assert.Equal(t, 0, devs.Stats().ActiveBuffers)
}

func TestPredictReuse(t *testing.T) {
	s, _ := newSession(t, testConfig())
	ctx := context.Background()
	model, err := s.Fit(ctx, dataset(), true)
	require.NoError(t, err)
	before, err := buffer.Download[float64](model.Buffer())
	require.NoError(t, err)

	x := stager.NewMatrix(3, 2, buffer.RowMajor, validX)
	first, err := s.Predict(ctx, x, nil, true)
	require.NoError(t, err)
	second, err := s.Predict(ctx, x, nil, true)
	require.NoError(t, err)
	best, err := s.Predict(ctx, x, stager.NewVector([]float64{1, 1, 2}), false)
	require.NoError(t, err)

	assert.False(t, first.Buffer().SameStorage(second.Buffer()))
	a, err := buffer.Download[float64](first.Buffer())
	require.NoError(t, err)
	b, err := buffer.Download[float64](second.Buffer())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, []*predict.Result{first, second, best}, s.Predictions())

	after, err := buffer.Download[float64](model.Buffer())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFitPredictReturnsItsPrediction(t *testing.T) {
	s, _ := newSession(t, testConfig())
	ctx := context.Background()

	model, pred, err := s.FitPredict(ctx, dataset(), false)
	require.NoError(t, err)
	assert.Same(t, model, s.Model())
	preds := s.Predictions()
	require.Len(t, preds, 1)
	assert.Same(t, pred, preds[0])

	again, err := s.Predict(ctx, stager.NewMatrix(3, 2, buffer.RowMajor, validX), nil, false)
	require.NoError(t, err)
	a, err := buffer.Download[float64](pred.Buffer())
	require.NoError(t, err)
	b, err := buffer.Download[float64](again.Buffer())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	ds := dataset()
	ds.ValidX, ds.ValidY = nil, nil
	_, _, err = s.FitPredict(ctx, ds, false)
	assert.ErrorIs(t, err, solvererr.ErrMissingPair)
}

func TestPredictWithoutModel(t *testing.T) {
	s, devs := newSession(t, testConfig())
	_, err := s.Predict(context.Background(), stager.NewMatrix(3, 2, buffer.RowMajor, validX), nil, false)
	require.ErrorIs(t, err, solvererr.ErrNoTrainedModel)
	assert.Equal(t, int64(0), devs.Stats().Allocations)

	_, err = s.Fit(context.Background(), dataset(), false)
	require.NoError(t, err)
	_, err = s.Predict(context.Background(), stager.NewMatrix(3, 2, buffer.RowMajor, validX), nil, true)
	assert.ErrorIs(t, err, solvererr.ErrNoTrainedModel)
}

func TestFailedStageKeepsLiveData(t *testing.T) {
	s, _ := newSession(t, testConfig())
	st, err := s.Stage(dataset())
	require.NoError(t, err)

	bad := dataset()
	bad.TrainY = stager.NewVector([]float64{1, 2})
	_, err = s.Stage(bad)
	require.ErrorIs(t, err, solvererr.ErrShapeMismatch)
	assert.Same(t, st, s.Staged())
	assert.False(t, st.TrainX.Freed())

	_, err = s.FitStaged(context.Background(), false)
	require.NoError(t, err)
}

func TestRefitReleasesPreviousPath(t *testing.T) {
	s, _ := newSession(t, testConfig())
	ctx := context.Background()
	first, err := s.Fit(ctx, dataset(), true)
	require.NoError(t, err)
	second, err := s.FitStaged(ctx, false)
	require.NoError(t, err)
	assert.True(t, first.Freed())
	assert.False(t, second.Freed())
	assert.Same(t, second, s.Model())
}

func TestFitStagedWithoutData(t *testing.T) {
	s, _ := newSession(t, testConfig())
	_, err := s.FitStaged(context.Background(), false)
	assert.ErrorIs(t, err, solvererr.ErrMissingPair)
}

func TestSaveAndLoadModel(t *testing.T) {
	cfg := testConfig()
	cfg.CompressModels = true
	s, _ := newSession(t, cfg)
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "model.enp")

	require.ErrorIs(t, s.SaveModel(file), solvererr.ErrNoTrainedModel)
	_, pred, err := s.FitPredict(ctx, dataset(), true)
	require.NoError(t, err)
	require.NoError(t, s.SaveModel(file))

	other, _ := newSession(t, cfg)
	loaded, err := other.LoadModel(file)
	require.NoError(t, err)
	assert.True(t, loaded.Full())
	assert.Equal(t, PhasePath, other.Live())

	got, err := other.Predict(ctx, stager.NewMatrix(3, 2, buffer.RowMajor, validX), nil, true)
	require.NoError(t, err)
	a, err := buffer.Download[float64](pred.Buffer())
	require.NoError(t, err)
	b, err := buffer.Download[float64](got.Buffer())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	cfg.Intercept = false
	mismatched, _ := newSession(t, cfg)
	_, err = mismatched.LoadModel(file)
	assert.ErrorIs(t, err, solvererr.ErrInvalidConfig)
}

func TestLogsCarrySessionID(t *testing.T) {
	var logs bytes.Buffer
	set, err := cpu.NewSet(1)
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Devices = 1
	s, err := New(cfg, WithDevices(set), WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))
	require.NoError(t, err)
	_, err = s.Fit(context.Background(), dataset(), false)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Contains(t, logs.String(), `"session":"`+s.ID().String()+`"`)
	assert.Contains(t, logs.String(), `"msg":"fitted path"`)
	assert.Contains(t, logs.String(), `"msg":"staged dataset"`)
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.NLambdas = 0
	_, err := New(cfg)
	assert.ErrorIs(t, err, solvererr.ErrInvalidConfig)

	set, err := cpu.NewSet(1)
	require.NoError(t, err)
	cfg = testConfig()
	cfg.SourceDevice = 1
	_, err = New(cfg, WithDevices(set))
	assert.ErrorIs(t, err, solvererr.ErrInvalidConfig)
}

func TestNewOpensConfiguredDevices(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Devices().Len())
	require.NoError(t, s.Close())

	if webgpu.IsAvailable() {
		t.Skip("WebGPU available; unavailable-device path not reachable")
	}
	cfg := testConfig()
	cfg.DeviceKind = "webgpu"
	_, err = New(cfg)
	assert.ErrorIs(t, err, device.ErrUnavailable)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "inputs|predictions", (PhaseInputs | PhasePredictions).String())
}
