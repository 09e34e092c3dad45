package regression

import (
	"fmt"
	"math"

	"github.com/arloliu/visco/errs"
)

// KelvinOffset converts Celsius to Kelvin.
const KelvinOffset = 273.15

// DefaultBaselineAlpha is the light ridge penalty applied to the baseline slope.
const DefaultBaselineAlpha = 0.1

// InverseTemperature returns 1 / T in Kelvin for a Celsius temperature.
func InverseTemperature(celsius float64) float64 {
	return 1.0 / (celsius + KelvinOffset)
}

// Arrhenius is the fitted temperature baseline: ln(viscosity) = A + B / T_K.
type Arrhenius struct {
	A        float64 `json:"a"`
	B        float64 `json:"b"`
	RSquared float64 `json:"r_squared"`
	RMSE     float64 `json:"rmse"`
	Rows     int     `json:"rows"`
}

// LnViscosity evaluates the baseline at a Celsius temperature.
func (a Arrhenius) LnViscosity(celsius float64) float64 {
	return a.A + a.B*InverseTemperature(celsius)
}

// Formula returns a human-readable form of the fitted baseline.
func (a Arrhenius) Formula() string {
	return fmt.Sprintf("ln(visc) = %.4f + %.2f / T_K", a.A, a.B)
}

func (a Arrhenius) String() string {
	return fmt.Sprintf("Arrhenius{%s, R²: %.4f, RMSE: %.4f}", a.Formula(), a.RSquared, a.RMSE)
}

// FitArrhenius fits the baseline on (temperature, viscosity) pairs.
//
// The regression is performed on the transformed variables X' = 1/T_K and
// Y = ln(viscosity), with a ridge penalty alpha on the standardized slope.
//
// Parameters:
//   - celsius: Measurement temperatures in °C
//   - viscosity: Measured viscosities, all must be > 0
//   - alpha: Ridge strength, typically DefaultBaselineAlpha
//
// Returns:
//   - Arrhenius: Fitted baseline with in-sample R² and RMSE (in ln space)
//   - error: Mismatched input, non-positive viscosity, or fewer than 2 rows
func FitArrhenius(celsius, viscosity []float64, alpha float64) (Arrhenius, error) {
	n := len(celsius)
	if n != len(viscosity) {
		return Arrhenius{}, fmt.Errorf("mismatched data lengths: %d temperatures vs %d viscosities", n, len(viscosity))
	}
	if n < 2 {
		return Arrhenius{}, fmt.Errorf("%w: baseline needs at least 2 rows, got %d", errs.ErrInsufficientData, n)
	}

	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range n {
		if viscosity[i] <= 0 || math.IsNaN(viscosity[i]) {
			return Arrhenius{}, fmt.Errorf("%w: non-positive viscosity %g at row %d", errs.ErrInvalidInput, viscosity[i], i)
		}
		X[i] = []float64{InverseTemperature(celsius[i])}
		y[i] = math.Log(viscosity[i])
	}

	m, err := Fit(&RidgeFitter{Alpha: alpha}, X, y)
	if err != nil {
		return Arrhenius{}, fmt.Errorf("baseline fit failed: %w", err)
	}

	lin, _ := m.Estimator.(*Linear)

	return Arrhenius{
		A:        lin.Intercept,
		B:        lin.Weights[0],
		RSquared: m.RSquared,
		RMSE:     m.RMSE,
		Rows:     n,
	}, nil
}
