package regression

import (
	"fmt"

	"github.com/arloliu/visco/format"
)

// Model is a fitted estimator with its in-sample fit statistics.
type Model struct {
	Kind      format.RegressorKind
	RSquared  float64
	RMSE      float64
	Rows      int
	Estimator Estimator
}

// Fit fits X, y with fitter and computes in-sample R² and RMSE.
func Fit(fitter Fitter, X [][]float64, y []float64) (*Model, error) {
	est, err := fitter.Fit(X, y)
	if err != nil {
		return nil, err
	}

	predicted := make([]float64, len(y))
	for i, row := range X {
		predicted[i] = est.Predict(row)
	}

	return &Model{
		Kind:      fitter.Kind(),
		RSquared:  RSquared(y, predicted),
		RMSE:      RMSE(y, predicted),
		Rows:      len(y),
		Estimator: est,
	}, nil
}

func (m *Model) String() string {
	return fmt.Sprintf("Model{Kind: %s, R²: %.4f, RMSE: %.4f, Rows: %d}",
		m.Kind, m.RSquared, m.RMSE, m.Rows)
}
