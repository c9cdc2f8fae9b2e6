// Package score implements the statistics used to grade embeddings: cosine
// similarity, Spearman rank correlation, cross-validated ridge regression and
// cross-validated logistic regression classifiers.
package score

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/constantino-dev/sentbench/pkg/types"
)

var (
	ErrLengthMismatch = errors.New("score: inputs differ in length")
	ErrTooFewSamples  = errors.New("score: too few samples")
	ErrUndefined      = errors.New("score: correlation undefined for constant input")
	ErrSingular       = errors.New("score: system is not positive definite")
)

// Cosine returns the cosine similarity of a and b. ok is false when either
// vector has zero norm or the lengths differ.
func Cosine(a, b types.Vector) (sim float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0, false
	}
	return floats.Dot(a, b) / (na * nb), true
}

// Ranks assigns 1-based ranks to xs, giving tied values their average rank.
func Ranks(xs []float64) []float64 {
	sorted := append([]float64(nil), xs...)
	idx := make([]int, len(xs))
	floats.ArgsortStable(sorted, idx)

	ranks := make([]float64, len(xs))
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		avg := float64(i+j+1) / 2 // mean of ranks i+1..j
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}
	return ranks
}

// Pearson returns the Pearson correlation of x and y.
func Pearson(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, ErrLengthMismatch
	}
	if len(x) < 2 {
		return 0, ErrTooFewSamples
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0, ErrUndefined
	}
	return r, nil
}

// Spearman returns the Spearman rank correlation of x and y.
func Spearman(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, ErrLengthMismatch
	}
	return Pearson(Ranks(x), Ranks(y))
}

// subset returns xs[idx[0]], xs[idx[1]], ...
func subset[T any](xs []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}

func checkDims(xs []types.Vector) (int, error) {
	if len(xs) == 0 {
		return 0, ErrTooFewSamples
	}
	d := len(xs[0])
	for _, x := range xs {
		if len(x) != d {
			return 0, ErrLengthMismatch
		}
	}
	return d, nil
}
