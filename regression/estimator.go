package regression

import (
	"fmt"

	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/format"
)

// Estimator is a fitted regression function.
//
// Implementations are immutable once fitted and safe for concurrent use.
type Estimator interface {
	// Predict evaluates the estimator. Inputs shorter than NumFeatures are
	// treated as zero-padded; extra inputs are ignored.
	Predict(x []float64) float64
	// Kind returns the estimator family.
	Kind() format.RegressorKind
	// NumFeatures returns the input width the estimator was fitted on.
	NumFeatures() int
}

// Fitter produces an Estimator from a design matrix X (rows are samples) and
// target vector y.
type Fitter interface {
	Fit(X [][]float64, y []float64) (Estimator, error)
	Kind() format.RegressorKind
}

// NewFitter creates a Fitter for the given kind.
//
// Parameters:
//   - kind: Estimator family (ridge, ols or forest)
//   - opts: Fit options; options that do not apply to the kind are ignored
//
// Returns:
//   - Fitter: Configured fitter
//   - error: Unknown kind or invalid option
func NewFitter(kind format.RegressorKind, opts ...FitOption) (Fitter, error) {
	cfg, err := newFitConfig(opts...)
	if err != nil {
		return nil, err
	}

	switch kind {
	case format.RegressorRidge:
		return &RidgeFitter{Alpha: cfg.Alpha}, nil
	case format.RegressorOLS:
		return &OLSFitter{}, nil
	case format.RegressorForest:
		return &ForestFitter{
			Trees:    cfg.Trees,
			MaxDepth: cfg.MaxDepth,
			MinLeaf:  cfg.MinLeaf,
			Seed:     cfg.Seed,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported regressor kind: %s", kind)
	}
}

// Linear is a fitted linear function: y = Intercept + Weights·x.
// Both ridge and OLS fits produce a Linear.
type Linear struct {
	Family    format.RegressorKind `json:"kind"`
	Intercept float64              `json:"intercept"`
	Weights   []float64            `json:"weights"`
}

var _ Estimator = (*Linear)(nil)

// NewLinear creates a linear estimator with the given coefficients.
func NewLinear(kind format.RegressorKind, intercept float64, weights []float64) *Linear {
	return &Linear{Family: kind, Intercept: intercept, Weights: weights}
}

func (l *Linear) Predict(x []float64) float64 {
	y := l.Intercept
	for i := range min(len(x), len(l.Weights)) {
		y += l.Weights[i] * x[i]
	}

	return y
}

func (l *Linear) Kind() format.RegressorKind { return l.Family }

func (l *Linear) NumFeatures() int { return len(l.Weights) }

// Snapshot is the serializable form of any fitted Estimator.
type Snapshot struct {
	Kind   format.RegressorKind `json:"kind"`
	Linear *Linear              `json:"linear,omitempty"`
	Forest *Forest              `json:"forest,omitempty"`
}

// NewSnapshot captures a fitted estimator.
func NewSnapshot(e Estimator) (Snapshot, error) {
	switch v := e.(type) {
	case *Linear:
		return Snapshot{Kind: v.Kind(), Linear: v}, nil
	case *Forest:
		return Snapshot{Kind: v.Kind(), Forest: v}, nil
	case nil:
		return Snapshot{}, errs.ErrNotFitted
	default:
		return Snapshot{}, fmt.Errorf("unsupported estimator type %T", e)
	}
}

// Estimator restores the fitted estimator held by the snapshot.
func (s Snapshot) Estimator() (Estimator, error) {
	switch s.Kind {
	case format.RegressorRidge, format.RegressorOLS:
		if s.Linear == nil {
			return nil, fmt.Errorf("%w: %s snapshot has no linear coefficients", errs.ErrInvalidArtifact, s.Kind)
		}

		return s.Linear, nil
	case format.RegressorForest:
		if s.Forest == nil || len(s.Forest.Trees) == 0 {
			return nil, fmt.Errorf("%w: forest snapshot has no trees", errs.ErrInvalidArtifact)
		}

		return s.Forest, nil
	default:
		return nil, fmt.Errorf("%w: unknown estimator kind %d", errs.ErrInvalidArtifact, s.Kind)
	}
}

func checkShape(X [][]float64, y []float64) (n, p int, err error) {
	n = len(X)
	if n == 0 {
		return 0, 0, fmt.Errorf("%w: empty design matrix", errs.ErrInsufficientData)
	}
	if n != len(y) {
		return 0, 0, fmt.Errorf("mismatched data lengths: %d rows vs %d targets", n, len(y))
	}

	p = len(X[0])
	for i, row := range X {
		if len(row) != p {
			return 0, 0, fmt.Errorf("%w: row %d has %d features, expected %d", errs.ErrFeatureShapeMismatch, i, len(row), p)
		}
	}

	return n, p, nil
}
