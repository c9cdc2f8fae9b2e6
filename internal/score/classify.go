package score

import (
	"math"

	"github.com/constantino-dev/sentbench/pkg/types"
)

// ClassifierParams configures the cross-validated classifiers.
type ClassifierParams struct {
	Classes int
	Folds   int
	Seed    int64
	Regs    []float64 // candidate values of c for FitLogistic (default: DefaultRegs)
}

// Accuracies are percentages rounded to two decimals.
type Accuracies struct {
	Dev  float64 // best mean cross-validation accuracy
	Test float64 // held-out accuracy
}

// KFoldClassify tunes c by stratified cross-validation on the training set,
// refits on all of it and reports the accuracy on the test set.
func KFoldClassify(trainX []types.Vector, trainY []int, testX []types.Vector, testY []int, p ClassifierParams) (Accuracies, error) {
	if len(trainX) != len(trainY) || len(testX) != len(testY) {
		return Accuracies{}, ErrLengthMismatch
	}
	c, dev, err := tune(trainX, trainY, p)
	if err != nil {
		return Accuracies{}, err
	}
	m, err := FitLogistic(trainX, trainY, p.Classes, c)
	if err != nil {
		return Accuracies{}, err
	}
	return Accuracies{Dev: percent(dev), Test: percent(m.Accuracy(testX, testY))}, nil
}

// InnerKFoldClassify runs an outer stratified cross-validation. Within each
// outer training split c is tuned by an inner cross-validation; the model
// refit with it is scored on the outer test fold. Dev is the mean of the
// inner best scores, Test the mean outer accuracy.
func InnerKFoldClassify(xs []types.Vector, ys []int, p ClassifierParams) (Accuracies, error) {
	if len(xs) != len(ys) {
		return Accuracies{}, ErrLengthMismatch
	}
	outer, err := StratifiedKFold(ys, p.Folds, p.Seed)
	if err != nil {
		return Accuracies{}, err
	}

	var dev, test float64
	for _, testIdx := range outer {
		trainIdx := Complement(len(ys), testIdx)
		trainX, trainY := subset(xs, trainIdx), subset(ys, trainIdx)

		c, acc, err := tune(trainX, trainY, p)
		if err != nil {
			return Accuracies{}, err
		}
		m, err := FitLogistic(trainX, trainY, p.Classes, c)
		if err != nil {
			return Accuracies{}, err
		}
		dev += acc
		test += m.Accuracy(subset(xs, testIdx), subset(ys, testIdx))
	}
	k := float64(len(outer))
	return Accuracies{Dev: percent(dev / k), Test: percent(test / k)}, nil
}

// tune returns the c with the best mean held-out accuracy and that accuracy.
func tune(xs []types.Vector, ys []int, p ClassifierParams) (float64, float64, error) {
	regs := p.Regs
	if len(regs) == 0 {
		regs = DefaultRegs
	}
	folds, err := StratifiedKFold(ys, p.Folds, p.Seed)
	if err != nil {
		return 0, 0, err
	}

	bestC, bestAcc := regs[0], -1.0
	for _, c := range regs {
		var sum float64
		for _, test := range folds {
			train := Complement(len(ys), test)
			m, err := FitLogistic(subset(xs, train), subset(ys, train), p.Classes, c)
			if err != nil {
				return 0, 0, err
			}
			sum += m.Accuracy(subset(xs, test), subset(ys, test))
		}
		if acc := sum / float64(len(folds)); acc > bestAcc {
			bestC, bestAcc = c, acc
		}
	}
	return bestC, bestAcc, nil
}

func percent(frac float64) float64 {
	return math.Round(frac*10000) / 100
}
