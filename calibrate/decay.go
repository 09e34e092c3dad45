package calibrate

import (
	"fmt"
	"math"

	"github.com/arloliu/visco/errs"
)

// Decay is the single-parameter law viscosity(p) = Raw * exp(-K * p), with
// p the terpene fraction.
type Decay struct {
	Raw float64
	K   float64
}

// FitDecay fits the decay law through (0, raw) and (p1, v1).
//
// The measurement must show thinning: v1 < raw and p1 > 0.
func FitDecay(raw, p1, v1 float64) (Decay, error) {
	switch {
	case !(raw > 0) || math.IsInf(raw, 0):
		return Decay{}, fmt.Errorf("%w: raw viscosity %g", errs.ErrInvalidInput, raw)
	case !(p1 > 0):
		return Decay{}, fmt.Errorf("%w: step 1 fraction %g", errs.ErrInvalidInput, p1)
	case !(v1 > 0):
		return Decay{}, fmt.Errorf("%w: step 1 viscosity %g", errs.ErrInvalidInput, v1)
	case v1 >= raw:
		return Decay{}, fmt.Errorf("%w: step 1 viscosity %g did not drop below raw %g",
			errs.ErrInvalidInput, v1, raw)
	}

	return Decay{Raw: raw, K: -math.Log(v1/raw) / p1}, nil
}

// Viscosity evaluates the law at terpene fraction p.
func (d Decay) Viscosity(p float64) float64 {
	return d.Raw * math.Exp(-d.K*p)
}

// Fraction returns the total terpene fraction p* with Viscosity(p*) = target.
// It is negative when target exceeds Raw.
func (d Decay) Fraction(target float64) float64 {
	return -math.Log(target/d.Raw) / d.K
}
