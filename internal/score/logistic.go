package score

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/constantino-dev/sentbench/pkg/types"
)

// DefaultRegs are the inverse regularization strengths tried when a
// classifier is tuned by cross-validation.
var DefaultRegs = []float64{0.25, 0.5, 1, 2, 4, 8}

const (
	maxIterations     = 200
	gradientThreshold = 1e-6
)

// Logistic is a multinomial logistic regression with L2-penalized weights
// and unpenalized biases.
type Logistic struct {
	classes int
	dims    int
	params  []float64 // per class: dims weights, then the bias
}

// FitLogistic trains a classifier for labels 0..classes-1 by minimizing
// the mean cross-entropy plus ||W||^2/(2*c*n) with L-BFGS.
func FitLogistic(xs []types.Vector, ys []int, classes int, c float64) (*Logistic, error) {
	if len(xs) != len(ys) {
		return nil, ErrLengthMismatch
	}
	d, err := checkDims(xs)
	if err != nil {
		return nil, err
	}
	for _, y := range ys {
		if y < 0 || y >= classes {
			return nil, fmt.Errorf("score: label %d outside 0..%d", y, classes-1)
		}
	}

	m := &Logistic{classes: classes, dims: d}
	stride := d + 1
	n := float64(len(xs))
	penalty := 1 / (2 * c)
	probs := make([]float64, classes)

	objective := func(params, grad []float64) float64 {
		for i := range grad {
			grad[i] = 0
		}
		var f float64
		for i, x := range xs {
			m.softmax(params, x, probs)
			f -= math.Log(math.Max(probs[ys[i]], math.SmallestNonzeroFloat64))
			if grad == nil {
				continue
			}
			for k, p := range probs {
				if k == ys[i] {
					p--
				}
				row := grad[k*stride : (k+1)*stride]
				floats.AddScaled(row[:d], p, x)
				row[d] += p
			}
		}
		for k := 0; k < classes; k++ {
			w := params[k*stride : k*stride+d]
			f += penalty * floats.Dot(w, w)
			if grad != nil {
				floats.AddScaled(grad[k*stride:k*stride+d], 2*penalty, w)
			}
		}
		if grad != nil {
			floats.Scale(1/n, grad)
		}
		return f / n
	}

	problem := optimize.Problem{
		Func: func(params []float64) float64 { return objective(params, nil) },
		Grad: func(grad, params []float64) { objective(params, grad) },
	}
	settings := &optimize.Settings{
		GradientThreshold: gradientThreshold,
		MajorIterations:   maxIterations,
	}
	res, err := optimize.Minimize(problem, make([]float64, classes*stride), settings, &optimize.LBFGS{})
	if res == nil {
		return nil, fmt.Errorf("score: fit logistic regression: %w", err)
	}
	m.params = res.X
	return m, nil
}

// softmax writes the class probabilities of x under params into out.
func (m *Logistic) softmax(params []float64, x types.Vector, out []float64) {
	stride := m.dims + 1
	top := math.Inf(-1)
	for k := range out {
		row := params[k*stride : (k+1)*stride]
		out[k] = floats.Dot(row[:m.dims], x) + row[m.dims]
		top = math.Max(top, out[k])
	}
	var sum float64
	for k := range out {
		out[k] = math.Exp(out[k] - top)
		sum += out[k]
	}
	floats.Scale(1/sum, out)
}

// Predict returns the most probable class for x.
func (m *Logistic) Predict(x types.Vector) int {
	probs := make([]float64, m.classes)
	m.softmax(m.params, x, probs)
	return floats.MaxIdx(probs)
}

// Accuracy returns the fraction of xs classified as ys.
func (m *Logistic) Accuracy(xs []types.Vector, ys []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	var hits int
	for i, x := range xs {
		if m.Predict(x) == ys[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(xs))
}
