// Package solver inverts the viscosity predictor: given a target viscosity it
// finds the terpene fraction that reproduces it.
//
// The objective |predict(x) - target| is minimized over a bounded interval
// with a derivative-free bracketing method, since it is not guaranteed to be
// convex. A Solver holds no mutable state and is safe for concurrent use.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/feature"
	"github.com/arloliu/visco/internal/options"
	"github.com/arloliu/visco/predictor"
)

const (
	// DefaultTemperature is the reference temperature for formulation, °C.
	DefaultTemperature = 25.0
	// DefaultLower and DefaultUpper bound the terpene fraction search.
	DefaultLower = 0.001
	DefaultUpper = 0.15
	// DefaultTolerance is the relative error below which a solution is
	// considered to hit the target.
	DefaultTolerance = 0.01
	// DefaultXTolerance is the absolute terpene fraction resolution.
	DefaultXTolerance = 1e-7
	// DefaultMaxEvaluations caps predictor calls per solve.
	DefaultMaxEvaluations = 500
	// StartDoseFactor scales the exact dose into the suggested first addition.
	StartDoseFactor = 1.1

	boundEpsilon = 1e-6
)

// Query is one inverse problem. Build it with NewQuery to get the default
// temperature; a zero TemperatureC means 0 °C.
type Query struct {
	Media        string
	Target       float64
	TemperatureC float64
	// Potency is held fixed during the search. When nil it follows
	// 1 - terpene fraction at every step.
	Potency      *float64
	TerpeneName  string
	TerpeneBrand string
}

// NewQuery returns a query at DefaultTemperature.
func NewQuery(media string, target float64) Query {
	return Query{Media: media, Target: target, TemperatureC: DefaultTemperature}
}

// Solution is the result of a solve.
type Solution struct {
	// TerpenePct is the solved terpene fraction.
	TerpenePct float64
	// Viscosity is the predicted viscosity at TerpenePct.
	Viscosity     float64
	Target        float64
	RelativeError float64
	Evaluations   int
	// Converged is false when the minimizer ran out of evaluations or the
	// best point misses the target by more than the tolerance. TerpenePct is
	// still the best estimate.
	Converged bool
	// AtBound is true when the solution sits on a search bound.
	AtBound bool
	// PhysicallyValid is false when TerpenePct exceeds 1 - potency.
	PhysicallyValid bool
	// Confidence is the terpene profile confidence of the final prediction.
	Confidence float64
	// Warnings unwrap to errs.ErrNonConvergence, errs.ErrPhysicalConstraint
	// or errs.ErrFeatureShapeMismatch.
	Warnings []error
}

// Dose converts a solution into amounts for a batch of oil.
type Dose struct {
	ExactPct  float64
	StartPct  float64
	ExactMass float64
	StartMass float64
}

// Dose returns the exact dose and a suggested first addition of
// min(1.1 x exact, upper) for oilMass grams of oil.
func (s Solution) Dose(oilMass, upper float64) Dose {
	start := math.Min(s.TerpenePct*StartDoseFactor, upper)

	return Dose{
		ExactPct:  s.TerpenePct,
		StartPct:  start,
		ExactMass: oilMass * s.TerpenePct,
		StartMass: oilMass * start,
	}
}

// Solver finds terpene fractions for target viscosities.
type Solver struct {
	pred      *predictor.Predictor
	lower     float64
	upper     float64
	xatol     float64
	tolerance float64
	maxEvals  int
}

// Option is a functional option for Solver.
type Option = options.Option[*Solver]

// WithBounds sets the terpene fraction search interval.
func WithBounds(lower, upper float64) Option {
	return options.New(func(s *Solver) error {
		if err := checkBounds(lower, upper); err != nil {
			return err
		}
		s.lower, s.upper = lower, upper

		return nil
	})
}

// WithTolerance sets the relative error accepted as converged.
func WithTolerance(rel float64) Option {
	return options.New(func(s *Solver) error {
		if !(rel > 0) {
			return fmt.Errorf("tolerance must be positive, got %g", rel)
		}
		s.tolerance = rel

		return nil
	})
}

// WithXTolerance sets the terpene fraction resolution.
func WithXTolerance(xatol float64) Option {
	return options.New(func(s *Solver) error {
		if !(xatol > 0) {
			return fmt.Errorf("x tolerance must be positive, got %g", xatol)
		}
		s.xatol = xatol

		return nil
	})
}

// WithMaxIterations caps predictor evaluations per solve.
func WithMaxIterations(n int) Option {
	return options.New(func(s *Solver) error {
		if n < 2 {
			return fmt.Errorf("max iterations must be at least 2, got %d", n)
		}
		s.maxEvals = n

		return nil
	})
}

// New creates a Solver over pred.
func New(pred *predictor.Predictor, opts ...Option) (*Solver, error) {
	if pred == nil {
		return nil, errs.ErrNoGeneration
	}

	s := &Solver{
		pred:      pred,
		lower:     DefaultLower,
		upper:     DefaultUpper,
		xatol:     DefaultXTolerance,
		tolerance: DefaultTolerance,
		maxEvals:  DefaultMaxEvaluations,
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	return s, nil
}

// Bounds returns the default search interval.
func (s *Solver) Bounds() (lower, upper float64) {
	return s.lower, s.upper
}

// Solve finds the terpene fraction within the solver bounds.
func (s *Solver) Solve(q Query) (Solution, error) {
	return s.SolveWithin(q, s.lower, s.upper)
}

// SolveWithin finds the terpene fraction in [lower, upper].
//
// Returns:
//   - Solution: Best estimate with convergence and feasibility flags
//   - error: errs.ErrInvalidTarget for a non-positive target,
//     *errs.ModelNotFoundError when media has no model, errs.ErrInvalidInput
//     for bad bounds or inputs
func (s *Solver) SolveWithin(q Query, lower, upper float64) (Solution, error) {
	if !(q.Target > 0) || math.IsInf(q.Target, 1) {
		return Solution{}, fmt.Errorf("%w: %g", errs.ErrInvalidTarget, q.Target)
	}
	if err := checkBounds(lower, upper); err != nil {
		return Solution{}, err
	}

	req := predictor.Request{
		Media:        q.Media,
		TemperatureC: q.TemperatureC,
		Potency:      q.Potency,
		TerpeneName:  q.TerpeneName,
		TerpeneBrand: q.TerpeneBrand,
	}

	// Surface lookup and input errors before searching.
	req.TerpenePct = lower
	if _, err := s.pred.Predict(req); err != nil {
		return Solution{}, err
	}

	var evalErr error
	objective := func(x float64) float64 {
		req.TerpenePct = x
		p, err := s.pred.Predict(req)
		if err != nil {
			evalErr = err
			return math.Inf(1)
		}

		return math.Abs(p.Viscosity - q.Target)
	}

	m := minimizeBounded(objective, lower, upper, s.xatol, s.maxEvals)
	if evalErr != nil {
		return Solution{}, evalErr
	}

	req.TerpenePct = m.x
	final, err := s.pred.Predict(req)
	if err != nil {
		return Solution{}, err
	}

	sol := Solution{
		TerpenePct:      m.x,
		Viscosity:       final.Viscosity,
		Target:          q.Target,
		RelativeError:   math.Abs(final.Viscosity-q.Target) / q.Target,
		Evaluations:     m.evals,
		AtBound:         m.x-lower <= boundEpsilon || upper-m.x <= boundEpsilon,
		PhysicallyValid: true,
		Confidence:      final.Confidence,
	}
	sol.Converged = m.converged && sol.RelativeError <= s.tolerance

	for _, w := range final.Warnings {
		if !errors.Is(w, errs.ErrPhysicalConstraint) {
			sol.Warnings = append(sol.Warnings, w)
		}
	}
	if !sol.Converged {
		sol.Warnings = append(sol.Warnings, fmt.Errorf("%w: best terpene fraction %.4f gives %.0f cP for target %.0f cP",
			errs.ErrNonConvergence, sol.TerpenePct, sol.Viscosity, q.Target))
	}
	if q.Potency != nil {
		potency := feature.Fraction(*q.Potency)
		if maxTerp := feature.TheoreticalMaxTerpene(potency); sol.TerpenePct > maxTerp {
			sol.PhysicallyValid = false
			sol.Warnings = append(sol.Warnings, fmt.Errorf("%w: terpene fraction %.4f exceeds %.4f for potency %.4f",
				errs.ErrPhysicalConstraint, sol.TerpenePct, maxTerp, potency))
		}
	}

	return sol, nil
}

// BatchResult is one entry of SolveBatch.
type BatchResult struct {
	Solution Solution
	Err      error
}

// SolveBatch solves independent queries concurrently. Results are in query
// order; a failing query does not stop the others. Only context cancellation
// is returned as an error.
func (s *Solver) SolveBatch(ctx context.Context, queries []Query, concurrency int) ([]BatchResult, error) {
	results := make([]BatchResult, len(queries))

	eg, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		eg.SetLimit(concurrency)
	}

	for i, q := range queries {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sol, err := s.Solve(q)
			results[i] = BatchResult{Solution: sol, Err: err}

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func checkBounds(lower, upper float64) error {
	if !(lower >= 0) || !(upper <= 1) || !(lower < upper) {
		return fmt.Errorf("%w: search bounds [%g, %g]", errs.ErrInvalidInput, lower, upper)
	}

	return nil
}
