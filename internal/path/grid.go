package path

import (
	"cmp"
	"math"
	"slices"

	"github.com/born-ml/pathfit/internal/buffer"
	"github.com/born-ml/pathfit/internal/config"
)

// Grid is the regularization grid of one fit. Lambdas[a] is the descending lambda path
// walked for Alphas[a].
type Grid[T buffer.Float] struct {
	Alphas  []T
	Lambdas [][]T
}

// AlphaGrid returns the mixing weights of cfg: the explicit list when given, otherwise
// AlphaCount values spaced linearly from AlphaMin to AlphaMax. A single alpha is
// AlphaMax.
func AlphaGrid[T buffer.Float](cfg config.Config) []T {
	if len(cfg.Alphas) > 0 {
		out := make([]T, len(cfg.Alphas))
		for i, a := range cfg.Alphas {
			out[i] = T(a)
		}
		return out
	}
	n := cfg.AlphaCount()
	out := make([]T, n)
	if n == 1 {
		out[0] = T(cfg.AlphaMax)
		return out
	}
	step := (cfg.AlphaMax - cfg.AlphaMin) / float64(n-1)
	for i := range out {
		out[i] = T(cfg.AlphaMin + float64(i)*step)
	}
	out[n-1] = T(cfg.AlphaMax)
	return out
}

// LambdaPath returns the lambdas walked for one alpha. An explicit list is sorted
// largest first, and record rows (and the lowest-index tie-break) follow that order,
// not the order of cfg.Lambdas. Otherwise LambdaCount values are spaced
// logarithmically from lambdaMax down to lambdaMax*LambdaMinRatio.
func LambdaPath[T buffer.Float](cfg config.Config, lambdaMax T) []T {
	if len(cfg.Lambdas) > 0 {
		out := make([]T, len(cfg.Lambdas))
		for i, l := range cfg.Lambdas {
			out[i] = T(l)
		}
		slices.SortStableFunc(out, func(a, b T) int { return cmp.Compare(b, a) })
		return out
	}
	n := cfg.LambdaCount()
	out := make([]T, n)
	out[0] = lambdaMax
	if n == 1 {
		return out
	}
	logRatio := math.Log(cfg.LambdaMinRatio)
	for i := 1; i < n; i++ {
		out[i] = lambdaMax * T(math.Exp(logRatio*float64(i)/float64(n-1)))
	}
	return out
}

// NewGrid builds the grid for cfg. lambdaMax is called once per alpha unless cfg
// carries an explicit lambda list.
func NewGrid[T buffer.Float](cfg config.Config, lambdaMax func(alpha T) T) Grid[T] {
	g := Grid[T]{Alphas: AlphaGrid[T](cfg)}
	g.Lambdas = make([][]T, len(g.Alphas))
	for a, alpha := range g.Alphas {
		var lmax T
		if len(cfg.Lambdas) == 0 {
			lmax = lambdaMax(alpha)
		}
		g.Lambdas[a] = LambdaPath(cfg, lmax)
	}
	return g
}

// NLambdas returns the length of every lambda path.
func (g Grid[T]) NLambdas() int {
	if len(g.Lambdas) == 0 {
		return 0
	}
	return len(g.Lambdas[0])
}
