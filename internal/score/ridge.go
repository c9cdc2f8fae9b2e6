package score

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/constantino-dev/sentbench/pkg/types"
)

// DefaultAlphas are the regularization strengths RidgeCV tries.
var DefaultAlphas = []float64{0.1, 1, 10}

// Ridge is an L2-regularized linear regression with an unpenalized
// intercept.
type Ridge struct {
	weights   []float64
	intercept float64
}

// FitRidge solves the ridge problem in closed form on centered data. The
// primal system is used when there are at least as many samples as
// dimensions, the dual one otherwise.
func FitRidge(xs []types.Vector, ys []float64, alpha float64) (*Ridge, error) {
	if len(xs) != len(ys) {
		return nil, ErrLengthMismatch
	}
	d, err := checkDims(xs)
	if err != nil {
		return nil, err
	}
	n := len(xs)

	x := mat.NewDense(n, d, nil)
	for i, v := range xs {
		x.SetRow(i, v)
	}
	means := make([]float64, d)
	col := make([]float64, n)
	for j := range means {
		means[j] = stat.Mean(mat.Col(col, j, x), nil)
	}
	xc := mat.NewDense(n, d, nil)
	xc.Apply(func(_, j int, v float64) float64 { return v - means[j] }, x)

	yMean := stat.Mean(ys, nil)
	yc := mat.NewVecDense(n, nil)
	for i, y := range ys {
		yc.SetVec(i, y-yMean)
	}

	var (
		gram mat.SymDense
		chol mat.Cholesky
		w    = mat.NewVecDense(d, nil)
	)
	if d <= n {
		gram.SymOuterK(1, xc.T())
		addDiag(&gram, alpha)
		var rhs mat.VecDense
		rhs.MulVec(xc.T(), yc)
		if !chol.Factorize(&gram) {
			return nil, ErrSingular
		}
		if err := solve(&chol, w, &rhs); err != nil {
			return nil, err
		}
	} else {
		gram.SymOuterK(1, xc)
		addDiag(&gram, alpha)
		if !chol.Factorize(&gram) {
			return nil, ErrSingular
		}
		var dual mat.VecDense
		if err := solve(&chol, &dual, yc); err != nil {
			return nil, err
		}
		w.MulVec(xc.T(), &dual)
	}

	weights := make([]float64, d)
	for j := range weights {
		weights[j] = w.AtVec(j)
	}
	return &Ridge{weights: weights, intercept: yMean - floats.Dot(means, weights)}, nil
}

// solve accepts ill-conditioned but solvable systems; mat reports those as
// a Condition error alongside a usable result.
func solve(chol *mat.Cholesky, dst *mat.VecDense, b mat.Vector) error {
	err := chol.SolveVecTo(dst, b)
	var cond mat.Condition
	if errors.As(err, &cond) {
		return nil
	}
	return err
}

func addDiag(s *mat.SymDense, alpha float64) {
	n := s.SymmetricDim()
	for i := 0; i < n; i++ {
		s.SetSym(i, i, s.At(i, i)+alpha)
	}
}

// Predict returns the regression output for x.
func (r *Ridge) Predict(x types.Vector) float64 {
	return floats.Dot(r.weights, x) + r.intercept
}

// RidgeResult is the outcome of RidgeCV.
type RidgeResult struct {
	Score float64 // mean held-out Spearman correlation
	Alpha float64
}

// RidgeCV fits a ridge regression for every alpha on folds contiguous
// folds and scores each held-out fold by the Spearman correlation between
// predictions and targets. It returns the alpha with the best mean score.
// Folds whose correlation is undefined are left out of the mean.
func RidgeCV(xs []types.Vector, ys []float64, folds int, alphas []float64) (RidgeResult, error) {
	if len(xs) != len(ys) {
		return RidgeResult{}, ErrLengthMismatch
	}
	if folds < 2 || len(xs) < folds {
		return RidgeResult{}, ErrTooFewSamples
	}
	if len(alphas) == 0 {
		alphas = DefaultAlphas
	}

	splits := KFold(len(xs), folds)
	best := RidgeResult{Score: math.Inf(-1)}
	for _, alpha := range alphas {
		var total float64
		var scored int
		for _, test := range splits {
			train := Complement(len(xs), test)
			m, err := FitRidge(subset(xs, train), subset(ys, train), alpha)
			if err != nil {
				return RidgeResult{}, err
			}

			preds := make([]float64, len(test))
			for i, t := range test {
				preds[i] = m.Predict(xs[t])
			}
			rho, err := Spearman(preds, subset(ys, test))
			if err != nil {
				continue
			}
			total += rho
			scored++
		}
		if scored == 0 {
			continue
		}
		if s := total / float64(scored); s > best.Score {
			best = RidgeResult{Score: s, Alpha: alpha}
		}
	}
	if math.IsInf(best.Score, -1) {
		return RidgeResult{}, ErrUndefined
	}
	return best, nil
}
