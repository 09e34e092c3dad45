package regression

import (
	"fmt"
	"math"

	sajari "github.com/sajari/regression"

	"github.com/arloliu/visco/format"
)

// OLSFitter fits ordinary least squares with github.com/sajari/regression.
//
// Constant columns are excluded from the solve and receive a zero weight,
// since the underlying QR decomposition cannot handle them.
type OLSFitter struct{}

var _ Fitter = (*OLSFitter)(nil)

func (f *OLSFitter) Kind() format.RegressorKind { return format.RegressorOLS }

func (f *OLSFitter) Fit(X [][]float64, y []float64) (Estimator, error) {
	n, p, err := checkShape(X, y)
	if err != nil {
		return nil, err
	}

	active := make([]int, 0, p)
	for j := range p {
		if !constantColumn(X, j) {
			active = append(active, j)
		}
	}

	if len(active) == 0 {
		var sum float64
		for _, v := range y {
			sum += v
		}

		return NewLinear(format.RegressorOLS, sum/float64(n), make([]float64, p)), nil
	}

	if n <= len(active) {
		return nil, fmt.Errorf("ols needs more rows (%d) than features (%d)", n, len(active))
	}

	r := new(sajari.Regression)
	r.SetObserved("y")
	for k, j := range active {
		r.SetVar(k, fmt.Sprintf("x%d", j))
	}

	for i, row := range X {
		vars := make([]float64, len(active))
		for k, j := range active {
			vars[k] = row[j]
		}
		r.Train(sajari.DataPoint(y[i], vars))
	}

	if err := r.Run(); err != nil {
		return nil, fmt.Errorf("ols fit failed: %w", err)
	}

	coeffs := r.GetCoeffs()
	if len(coeffs) != len(active)+1 {
		return nil, fmt.Errorf("ols returned %d coefficients, expected %d", len(coeffs), len(active)+1)
	}

	weights := make([]float64, p)
	for k, j := range active {
		weights[j] = coeffs[k+1]
	}
	for _, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("ols produced non-finite coefficients")
		}
	}

	return NewLinear(format.RegressorOLS, coeffs[0], weights), nil
}

func constantColumn(X [][]float64, j int) bool {
	first := X[0][j]
	for _, row := range X[1:] {
		if row[j] != first {
			return false
		}
	}

	return true
}
