package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/arloliu/visco/format"
)

// RidgeFitter fits y = a + w·x minimizing ||y - a - Xw||² + Alpha·||w_std||²,
// where w_std are the weights on standardized features. The intercept is not
// penalized.
type RidgeFitter struct {
	Alpha float64
}

var _ Fitter = (*RidgeFitter)(nil)

func (f *RidgeFitter) Kind() format.RegressorKind { return format.RegressorRidge }

// Fit solves the normal equations (XsᵀXs + αI)w = Xsᵀ(y - ȳ) by Cholesky
// factorization, then maps w back to raw feature units.
func (f *RidgeFitter) Fit(X [][]float64, y []float64) (Estimator, error) {
	n, p, err := checkShape(X, y)
	if err != nil {
		return nil, err
	}

	yMean := stat.Mean(y, nil)
	if p == 0 {
		return NewLinear(format.RegressorRidge, yMean, nil), nil
	}

	means, scales := columnMoments(X, p)

	xs := mat.NewDense(n, p, nil)
	for i, row := range X {
		for j, v := range row {
			xs.Set(i, j, (v-means[j])/scales[j])
		}
	}
	yc := mat.NewVecDense(n, nil)
	for i, v := range y {
		yc.SetVec(i, v-yMean)
	}

	gram := mat.NewSymDense(p, nil)
	gram.SymOuterK(1, xs.T())
	for j := range p {
		gram.SetSym(j, j, gram.At(j, j)+f.Alpha)
	}

	var rhs mat.VecDense
	rhs.MulVec(xs.T(), yc)

	var w mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(gram) {
		if err := chol.SolveVecTo(&w, &rhs); err != nil {
			return nil, fmt.Errorf("ridge solve failed: %w", err)
		}
	} else if err := w.SolveVec(gram, &rhs); err != nil {
		// Only reachable with Alpha == 0 and collinear features.
		return nil, fmt.Errorf("ridge normal equations are singular: %w", err)
	}

	weights := make([]float64, p)
	intercept := yMean
	for j := range p {
		weights[j] = w.AtVec(j) / scales[j]
		intercept -= weights[j] * means[j]
	}

	return NewLinear(format.RegressorRidge, intercept, weights), nil
}

// columnMoments returns per-column means and standard deviations. Constant
// columns get a scale of 1 so they standardize to zero.
func columnMoments(X [][]float64, p int) (means, scales []float64) {
	means = make([]float64, p)
	scales = make([]float64, p)
	col := make([]float64, len(X))

	for j := range p {
		for i, row := range X {
			col[i] = row[j]
		}
		m, v := stat.PopMeanVariance(col, nil)
		means[j] = m
		sd := math.Sqrt(v)
		if sd < 1e-12 || math.IsNaN(sd) {
			sd = 1
		}
		scales[j] = sd
	}

	return means, scales
}
