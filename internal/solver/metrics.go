package solver

import (
	"math"

	"github.com/born-ml/pathfit/internal/buffer"
)

// Predict writes X·beta into dst[:x.Rows].
func Predict[T buffer.Float](x Matrix[T], beta, dst []T) {
	if x.Rows == 0 {
		return
	}
	gemv(x.Data, x.Order, x.Rows, x.Cols, beta[:x.Cols], dst[:x.Rows])
}

// RMSE returns the weighted root mean squared error of pred against y over rows
// [lo, hi). Weights may be nil. An empty range yields NaN.
func RMSE[T buffer.Float](pred, y, weights []T, lo, hi int) T {
	var sum, wsum T
	for i := lo; i < hi; i++ {
		r := y[i] - pred[i]
		w := T(1)
		if weights != nil {
			w = weights[i]
		}
		sum += w * r * r
		wsum += w
	}
	if wsum == 0 {
		return T(math.NaN())
	}
	return T(math.Sqrt(float64(sum / wsum)))
}
