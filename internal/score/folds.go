package score

import (
	"math/rand"
	"sort"
)

// KFold splits 0..n-1 into k contiguous test folds. The first n%k folds get
// one extra sample.
func KFold(n, k int) [][]int {
	folds := make([][]int, 0, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		fold := make([]int, size)
		for i := range fold {
			fold[i] = start + i
		}
		folds = append(folds, fold)
		start += size
	}
	return folds
}

// StratifiedKFold shuffles the samples of every class with a source seeded
// by seed and deals them round-robin into k test folds, so each fold keeps
// roughly the class proportions of labels.
func StratifiedKFold(labels []int, k int, seed int64) ([][]int, error) {
	if k < 2 || len(labels) < k {
		return nil, ErrTooFewSamples
	}

	byClass := make(map[int][]int)
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	classes := make([]int, 0, len(byClass))
	for y := range byClass {
		classes = append(classes, y)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	next := 0
	for _, y := range classes {
		members := byClass[y]
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		for _, i := range members {
			folds[next%k] = append(folds[next%k], i)
			next++
		}
	}
	for _, f := range folds {
		sort.Ints(f)
	}
	return folds, nil
}

// Complement returns the indices in 0..n-1 that are not in test, in order.
func Complement(n int, test []int) []int {
	held := make([]bool, n)
	for _, i := range test {
		held[i] = true
	}
	out := make([]int, 0, n-len(test))
	for i := 0; i < n; i++ {
		if !held[i] {
			out = append(out, i)
		}
	}
	return out
}
