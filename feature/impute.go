package feature

import "math"

// ImputeColumns replaces NaN cells in a row-major matrix in place and returns
// the column means used. An all-NaN column is filled with MissingDefault.
func ImputeColumns(X [][]float64) []float64 {
	if len(X) == 0 {
		return nil
	}

	p := len(X[0])
	means := make([]float64, p)
	for j := range p {
		var sum float64
		var n int
		for _, row := range X {
			if !math.IsNaN(row[j]) {
				sum += row[j]
				n++
			}
		}
		if n == 0 {
			means[j] = MissingDefault
		} else {
			means[j] = sum / float64(n)
		}

		for _, row := range X {
			if math.IsNaN(row[j]) {
				row[j] = means[j]
			}
		}
	}

	return means
}
