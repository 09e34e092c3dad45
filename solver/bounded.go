package solver

import "math"

var (
	goldenMean = 0.5 * (3.0 - math.Sqrt(5.0))
	sqrtEps    = math.Sqrt(2.2e-16)
)

type minimum struct {
	x         float64
	fx        float64
	evals     int
	converged bool
}

// minimizeBounded finds a local minimum of f on [a, b] with Brent's method:
// golden-section steps combined with parabolic interpolation, never
// evaluating f outside the interval. It stops when the bracket around the
// best point is narrower than about 2*xatol, or after maxEvals evaluations
// with converged == false.
func minimizeBounded(f func(float64) float64, a, b, xatol float64, maxEvals int) minimum {
	fulc := a + goldenMean*(b-a)
	nfc, xf := fulc, fulc
	var rat, e float64

	x := xf
	fx := f(x)
	evals := 1

	ffulc, fnfc := fx, fx
	xm := 0.5 * (a + b)
	tol1 := sqrtEps*math.Abs(xf) + xatol/3.0
	tol2 := 2.0 * tol1

	for math.Abs(xf-xm) > tol2-0.5*(b-a) {
		golden := true

		if math.Abs(e) > tol1 {
			golden = false
			r := (xf - nfc) * (fx - ffulc)
			q := (xf - fulc) * (fx - fnfc)
			p := (xf-fulc)*q - (xf-nfc)*r
			q = 2.0 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			r = e
			e = rat

			if math.Abs(p) < math.Abs(0.5*q*r) && p > q*(a-xf) && p < q*(b-xf) {
				// Parabolic step, pulled back from the bounds.
				rat = p / q
				x = xf + rat
				if x-a < tol2 || b-x < tol2 {
					rat = tol1 * sign(xm-xf)
				}
			} else {
				golden = true
			}
		}

		if golden {
			if xf >= xm {
				e = a - xf
			} else {
				e = b - xf
			}
			rat = goldenMean * e
		}

		x = xf + sign(rat)*math.Max(math.Abs(rat), tol1)
		fu := f(x)
		evals++

		if fu <= fx {
			if x >= xf {
				a = xf
			} else {
				b = xf
			}
			fulc, ffulc = nfc, fnfc
			nfc, fnfc = xf, fx
			xf, fx = x, fu
		} else {
			if x < xf {
				a = x
			} else {
				b = x
			}
			switch {
			case fu <= fnfc || nfc == xf:
				fulc, ffulc = nfc, fnfc
				nfc, fnfc = x, fu
			case fu <= ffulc || fulc == xf || fulc == nfc:
				fulc, ffulc = x, fu
			}
		}

		xm = 0.5 * (a + b)
		tol1 = sqrtEps*math.Abs(xf) + xatol/3.0
		tol2 = 2.0 * tol1

		if evals >= maxEvals {
			return minimum{x: xf, fx: fx, evals: evals}
		}
	}

	return minimum{x: xf, fx: fx, evals: evals, converged: true}
}

// sign returns -1 for negative v and 1 otherwise, including zero.
func sign(v float64) float64 {
	if v < 0 {
		return -1
	}

	return 1
}
