package ml

import (
	"fmt"
	"math"
	"math/rand"

	"cytodx/errdefs"
)

// Split holds row indices of the training and held-out partitions.
type Split struct {
	Train []int `json:"train"`
	Test  []int `json:"test"`
}

// NewSplit permutes 0..n-1 with a source seeded by seed and holds out the first
// ceil(n*fraction) rows, always leaving at least one row for training.
func NewSplit(n int, fraction float64, seed int64) (Split, error) {
	if n <= 0 {
		return Split{}, fmt.Errorf("%w: cannot split %d rows", errdefs.ErrEmptyDataset, n)
	}
	if !(fraction > 0 && fraction < 1) {
		return Split{}, fmt.Errorf("%w: split fraction %v outside (0,1)", errdefs.ErrInvalidConfig, fraction)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(math.Ceil(float64(n) * fraction))
	if nTest >= n {
		nTest = n - 1
	}
	return Split{Test: perm[:nTest], Train: perm[nTest:]}, nil
}

// KFold permutes 0..n-1 with seed and cuts it into k folds whose sizes differ by at most
// one. Split i holds out fold i and trains on the rest.
func KFold(n, k int, seed int64) ([]Split, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: need at least 2 folds, got %d", errdefs.ErrInvalidConfig, k)
	}
	if n < k {
		return nil, fmt.Errorf("%w: %d rows cannot fill %d folds", errdefs.ErrInsufficientData, n, k)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	splits := make([]Split, k)
	start := 0
	for i := 0; i < k; i++ {
		size := n / k
		if i < n%k {
			size++
		}
		test := perm[start : start+size]
		train := make([]int, 0, n-size)
		train = append(train, perm[:start]...)
		train = append(train, perm[start+size:]...)
		splits[i] = Split{Train: train, Test: test}
		start += size
	}
	return splits, nil
}

func selectRows(features [][]float64, labels []int, indices []int) ([][]float64, []int) {
	X := make([][]float64, len(indices))
	y := make([]int, len(indices))
	for i, idx := range indices {
		X[i] = features[idx]
		y[i] = labels[idx]
	}
	return X, y
}
