package regression

import "math"

// RSquared calculates the coefficient of determination.
//
// Formula: R² = 1 - (SS_res / SS_tot)
//
// Unlike a plain goodness-of-fit, held-out R² can be negative when the model
// does worse than predicting the mean. A constant observed series returns 0.
func RSquared(observed, predicted []float64) float64 {
	if len(observed) == 0 {
		return 0
	}

	mean := Mean(observed)
	ssTot := 0.0
	ssRes := 0.0

	for i := range observed {
		ssTot += (observed[i] - mean) * (observed[i] - mean)
		ssRes += (observed[i] - predicted[i]) * (observed[i] - predicted[i])
	}

	if ssTot == 0 {
		return 0
	}

	return 1.0 - (ssRes / ssTot)
}

// RMSE calculates the root mean square error.
func RMSE(observed, predicted []float64) float64 {
	if len(observed) == 0 {
		return 0
	}

	sumSq := 0.0
	for i := range observed {
		diff := observed[i] - predicted[i]
		sumSq += diff * diff
	}

	return math.Sqrt(sumSq / float64(len(observed)))
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}
