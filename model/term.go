package model

import (
	"github.com/arloliu/visco/feature"
	"github.com/arloliu/visco/internal/pool"
	"github.com/arloliu/visco/regression"
)

// Term is one additive log-viscosity component: an estimator together with
// the feature schema it was trained on.
type Term struct {
	Schema   feature.Schema      `json:"schema"`
	Fit      regression.Snapshot `json:"fit"`
	RSquared float64             `json:"r_squared"`

	est regression.Estimator
}

// NewTerm wraps a fitted regression model.
func NewTerm(schema feature.Schema, m *regression.Model) (Term, error) {
	snap, err := regression.NewSnapshot(m.Estimator)
	if err != nil {
		return Term{}, err
	}

	return Term{Schema: schema, Fit: snap, RSquared: m.RSquared, est: m.Estimator}, nil
}

func (t *Term) bind() error {
	est, err := t.Fit.Estimator()
	if err != nil {
		return err
	}
	t.est = est

	return nil
}

// Estimator returns the fitted estimator.
func (t *Term) Estimator() regression.Estimator {
	return t.est
}

// Eval assembles in against the schema and evaluates the estimator. A non-nil
// error is a warning: the vector was padded or truncated to fit the estimator
// and the returned value is still usable.
func (t *Term) Eval(in feature.Inputs) (float64, error) {
	buf, cleanup := pool.GetFloat64Slice(t.Schema.Len())
	defer cleanup()

	x := t.Schema.Assemble(in, buf)

	return t.evalDense(x)
}

// EvalComposition evaluates a composition term. Compounds absent from the
// map contribute zero.
func (t *Term) EvalComposition(compounds map[string]float64) (float64, error) {
	x, cleanup := pool.GetFloat64Slice(t.Schema.Len())
	defer cleanup()

	for i, tag := range t.Schema.Tags {
		name := string(tag)[len(feature.CompositionTagPrefix):]
		x[i] = compounds[name]
	}

	return t.evalDense(x)
}

func (t *Term) evalDense(x []float64) (float64, error) {
	fitted, warn := feature.Fit(x, t.est.NumFeatures())

	return t.est.Predict(fitted), warn
}

// CompositionSchema returns the schema for a composition term over compounds.
func CompositionSchema(compounds []string) feature.Schema {
	tags := make([]feature.Tag, len(compounds))
	for i, c := range compounds {
		tags[i] = feature.CompositionTag(c)
	}

	return feature.NewSchema(tags)
}
