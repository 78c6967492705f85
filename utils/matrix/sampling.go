// Package matrix contains sampling helpers used by the estimators.
package matrix

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// SampleWithoutReplacement draws k distinct integers uniformly from [0, n) using rng.
// The same rng state always yields the same sample.
func SampleWithoutReplacement(k, n int, rng *rand.Rand) ([]int, error) {
	if k <= 0 || k > n {
		return nil, errors.Errorf("cannot sample %d distinct integers from [0, %d)", k, n)
	}
	if rng == nil {
		return nil, errors.New("a random source is required for reproducible sampling")
	}
	idxs := make([]int, k)
	sampleuv.WithoutReplacement(idxs, n, rng)
	return idxs, nil
}
