package regression

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/arloliu/visco/errs"
)

// CVScore summarizes k-fold cross-validation R².
type CVScore struct {
	Folds  int       `json:"folds"`
	Scores []float64 `json:"scores"`
	Mean   float64   `json:"mean"`
	Std    float64   `json:"std"`
}

func (s CVScore) String() string {
	return fmt.Sprintf("R² %.4f ± %.4f (%d folds)", s.Mean, s.Std, s.Folds)
}

// KFold shuffles 0..n-1 with the given seed and splits it into k test folds.
// The first n%k folds hold one extra index.
func KFold(n, k int, seed uint64) [][]int {
	if k < 2 || n < k {
		return nil
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

	folds := make([][]int, k)
	start := 0
	for f := range k {
		size := n / k
		if f < n%k {
			size++
		}
		folds[f] = perm[start : start+size]
		start += size
	}

	return folds
}

// CrossValidate fits fitter on k-1 folds and scores R² on the held-out fold,
// for each of the k folds.
//
// Parameters:
//   - fitter: Estimator family to evaluate
//   - X, y: Full design matrix and targets
//   - k: Number of folds, at least 2 and at most len(y)
//   - seed: Shuffle seed
//
// Returns:
//   - CVScore: Per-fold scores with mean and population standard deviation
//   - error: ErrInsufficientData if k is out of range, or a fit error
func CrossValidate(fitter Fitter, X [][]float64, y []float64, k int, seed uint64) (CVScore, error) {
	n, _, err := checkShape(X, y)
	if err != nil {
		return CVScore{}, err
	}

	folds := KFold(n, k, seed)
	if folds == nil {
		return CVScore{}, fmt.Errorf("%w: cannot split %d rows into %d folds", errs.ErrInsufficientData, n, k)
	}

	inTest := make([]bool, n)
	scores := make([]float64, 0, k)

	for _, test := range folds {
		clear(inTest)
		for _, i := range test {
			inTest[i] = true
		}

		trainX := make([][]float64, 0, n-len(test))
		trainY := make([]float64, 0, n-len(test))
		for i := range n {
			if !inTest[i] {
				trainX = append(trainX, X[i])
				trainY = append(trainY, y[i])
			}
		}

		est, err := fitter.Fit(trainX, trainY)
		if err != nil {
			return CVScore{}, fmt.Errorf("fold fit failed: %w", err)
		}

		observed := make([]float64, len(test))
		predicted := make([]float64, len(test))
		for j, i := range test {
			observed[j] = y[i]
			predicted[j] = est.Predict(X[i])
		}
		scores = append(scores, RSquared(observed, predicted))
	}

	mean, variance := stat.PopMeanVariance(scores, nil)

	return CVScore{Folds: k, Scores: scores, Mean: mean, Std: math.Sqrt(variance)}, nil
}
