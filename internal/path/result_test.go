package path

import (
	"math"
	"testing"

	"github.com/born-ml/pathfit/internal/buffer"
	"github.com/born-ml/pathfit/internal/config"
	"github.com/born-ml/pathfit/internal/device/cpu"
	"github.com/born-ml/pathfit/internal/solvererr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(n int, train, valid float64) []float64 {
	r := make([]float64, n+RecordExtra)
	r[n+FieldTrainRMSE] = train
	r[n+FieldCVRMSE] = math.NaN()
	r[n+FieldValidRMSE] = valid
	return r
}

func TestSelectBest(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name    string
		records [][]float64
		want    int
	}{
		{"validation wins", [][]float64{record(1, 0.1, 3), record(1, 0.2, 1), record(1, 0.3, 2)}, 1},
		{"train fallback", [][]float64{record(1, 3, nan), record(1, 2, nan), record(1, 5, nan)}, 1},
		{"tie keeps lowest index", [][]float64{record(1, 1, 2), record(1, 0, 1), record(1, 0, 1)}, 1},
		{"all tied", [][]float64{record(1, 1, nan), record(1, 1, nan)}, 0},
		{"nan ranks last", [][]float64{record(1, 1, nan), record(1, 9, 4), record(1, 1, nan)}, 1},
		{"all nan", [][]float64{record(1, nan, nan), record(1, nan, nan)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectBest(tt.records, 1))
		})
	}
}

func TestWrap_LayoutInconsistency(t *testing.T) {
	dev := cpu.New(0)
	buf, err := buffer.New(dev, buffer.Shape{3, 2 + RecordExtra + 1}, buffer.Float64, buffer.RowMajor)
	require.NoError(t, err)
	_, err = Wrap(buf, Layout{NAlphas: 3, NLambdas: 5, N: 2})
	require.ErrorIs(t, err, solvererr.ErrLayoutInconsistency)

	_, err = Wrap(buf, Layout{Full: true, NAlphas: 3, NLambdas: 5, N: 3})
	require.ErrorIs(t, err, solvererr.ErrLayoutInconsistency, "rank")

	r, err := Wrap(buf, Layout{NAlphas: 3, NLambdas: 5, N: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Layout().Rows())

	_, err = Wrap(buffer.Null(buffer.Float64), Layout{N: 1})
	assert.ErrorIs(t, err, solvererr.ErrLayoutInconsistency)
}

func TestViews_AliasBuffer(t *testing.T) {
	dev := cpu.New(0)
	l := Layout{Full: true, NAlphas: 2, NLambdas: 2, N: 1}
	data := make([]float64, l.Shape().NumElements())
	for i := range data {
		data[i] = float64(i)
	}
	r, err := FromRecords(dev, data, l)
	require.NoError(t, err)

	v, err := ViewsOf[float64](r)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, v.Coefficients(0, 0))
	assert.Equal(t, []float64{7}, v.Coefficients(0, 1))
	assert.Equal(t, []float64{15, 16, 17}, v.RMSE(1, 0))
	assert.Equal(t, 18.0, v.Lambda(1, 0))
	assert.Equal(t, 19.0, v.Alpha(1, 0))
	assert.Equal(t, 20.0, v.Tol(1, 0))

	raw, err := buffer.View[float64](r.Buffer())
	require.NoError(t, err)
	assert.Same(t, &raw[len(raw)-RecordExtra-1], &v.Coefficients(1, 1)[0])

	_, err = FromRecords(dev, data[1:], l)
	assert.ErrorIs(t, err, solvererr.ErrLayoutInconsistency)
}

func TestAlphaGrid(t *testing.T) {
	cfg := config.Default()
	cfg.NAlphas = 1
	cfg.AlphaMax = 0.7
	assert.Equal(t, []float64{0.7}, AlphaGrid[float64](cfg))

	cfg.NAlphas = 5
	cfg.AlphaMin, cfg.AlphaMax = 0, 1
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, AlphaGrid[float64](cfg))

	cfg.Alphas = []float64{0.9, 0.1}
	assert.Equal(t, []float32{0.9, 0.1}, AlphaGrid[float32](cfg))
}

func TestLambdaPath(t *testing.T) {
	cfg := config.Default()
	cfg.NLambdas = 3
	cfg.LambdaMinRatio = 0.01
	got := LambdaPath(cfg, 10.0)
	require.Len(t, got, 3)
	assert.Equal(t, 10.0, got[0])
	assert.InDelta(t, 1.0, got[1], 1e-12)
	assert.InDelta(t, 0.1, got[2], 1e-12)

	cfg.NLambdas = 1
	assert.Equal(t, []float64{10}, LambdaPath(cfg, 10.0))

	cfg.Lambdas = []float64{0.1, 1, 0, 0.5}
	assert.Equal(t, []float64{1, 0.5, 0.1, 0}, LambdaPath(cfg, 10.0))
}

func TestNewGrid_LambdaMaxPerAlpha(t *testing.T) {
	cfg := config.Default()
	cfg.NAlphas = 2
	cfg.NLambdas = 2
	cfg.LambdaMinRatio = 0.5
	calls := 0
	g := NewGrid(cfg, func(alpha float64) float64 {
		calls++
		return 1 / max(alpha, 1e-3)
	})
	assert.Equal(t, 2, calls)
	require.Len(t, g.Lambdas, 2)
	assert.InDeltaSlice(t, []float64{1000, 500}, g.Lambdas[0], 1e-9)
	assert.InDeltaSlice(t, []float64{1, 0.5}, g.Lambdas[1], 1e-12)
	assert.Equal(t, 2, g.NLambdas())

	cfg.Lambdas = []float64{3}
	calls = 0
	g = NewGrid(cfg, func(float64) float64 { calls++; return 1 })
	assert.Zero(t, calls)
	assert.Equal(t, [][]float64{{3}, {3}}, g.Lambdas)
}
