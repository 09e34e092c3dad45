// Package predictor evaluates trained models.
//
// A prediction is the sum of additive terms in log-viscosity space:
//
//	ln η = baseline(1/T_K) + residual(features) + composition(profile)
//
// and the returned viscosity is exp of that sum, so it is always positive.
// A Predictor is bound to one immutable model generation and is safe for
// concurrent use.
package predictor

import (
	"errors"
	"fmt"
	"math"

	"github.com/arloliu/visco/artifact"
	"github.com/arloliu/visco/dataset"
	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/feature"
	"github.com/arloliu/visco/format"
	"github.com/arloliu/visco/internal/options"
	"github.com/arloliu/visco/model"
	"github.com/arloliu/visco/profile"
)

// Request describes one point to predict. TerpenePct and Potency accept
// either fractions or percentages; values above 1 are read as percent.
type Request struct {
	Media        string
	TerpenePct   float64
	TemperatureC float64
	// Potency defaults to 1 - TerpenePct when nil.
	Potency      *float64
	TerpeneName  string
	TerpeneBrand string
}

// Prediction is a viscosity estimate with its log-space terms.
type Prediction struct {
	Viscosity     float64
	LnBaseline    float64
	LnResidual    float64
	LnComposition float64

	Media      string
	Variant    format.ModelVariant
	TerpenePct float64
	Potency    float64
	IsRaw      bool

	// Profile is the terpene profile fed to the composition term, if any.
	Profile *profile.Resolved
	// Confidence is the profile confidence, 1 when no profile was used. It
	// never changes Viscosity.
	Confidence float64
	// PhysicallyValid is false when TerpenePct exceeds the theoretical
	// maximum for Potency.
	PhysicallyValid bool
	// Warnings lists degraded conditions. Each unwraps to a sentinel such as
	// errs.ErrFeatureShapeMismatch or errs.ErrPhysicalConstraint.
	Warnings []error
}

// Predictor evaluates the models of one generation.
type Predictor struct {
	gen    *artifact.Generation
	prefer format.ModelVariant
}

// Option is a functional option for Predictor.
type Option = options.Option[*Predictor]

// WithPreferredVariant selects which model variant to use when a media type
// has both. The other variant is used as a fallback.
func WithPreferredVariant(v format.ModelVariant) Option {
	return options.New(func(p *Predictor) error {
		switch v {
		case format.VariantTwoLevel, format.VariantConsolidated:
			p.prefer = v
			return nil
		default:
			return fmt.Errorf("unsupported model variant: %s", v)
		}
	})
}

// New creates a Predictor over gen.
func New(gen *artifact.Generation, opts ...Option) (*Predictor, error) {
	if gen == nil {
		return nil, errs.ErrNoGeneration
	}

	p := &Predictor{gen: gen, prefer: format.VariantTwoLevel}
	if err := options.Apply(p, opts...); err != nil {
		return nil, err
	}

	return p, nil
}

// Generation returns the generation the predictor is bound to.
func (p *Predictor) Generation() *artifact.Generation {
	return p.gen
}

// Model returns the model used for media.
func (p *Predictor) Model(media string) (model.Model, error) {
	return p.gen.Lookup(media, p.prefer)
}

// Predict estimates the viscosity for req.
//
// Returns:
//   - Prediction: The estimate; Viscosity is always > 0
//   - error: *errs.ModelNotFoundError when media has no model, or
//     errs.ErrInvalidInput for non-finite or negative inputs
func (p *Predictor) Predict(req Request) (Prediction, error) {
	if err := validate(req); err != nil {
		return Prediction{}, err
	}

	name := dataset.TerpeneIdentity(req.TerpeneName, req.TerpeneBrand)

	m, err := p.gen.Lookup(req.Media, p.prefer)
	if err != nil {
		var nf *errs.ModelNotFoundError
		if errors.As(err, &nf) {
			return Prediction{}, &errs.ModelNotFoundError{Media: req.Media, Terpene: name}
		}

		return Prediction{}, err
	}
	media := m.Meta().Media

	terp := feature.Fraction(req.TerpenePct)
	potency := dataset.ImputePotency(terp)
	if req.Potency != nil {
		potency = feature.Fraction(*req.Potency)
	}

	in := feature.Inputs{
		Potency:     potency,
		TerpenePct:  terp,
		IsRaw:       isRaw(media, name, terp),
		TerpeneName: name,
	}

	out := Prediction{
		Media:           media,
		Variant:         m.Variant(),
		TerpenePct:      terp,
		Potency:         potency,
		IsRaw:           in.IsRaw,
		Confidence:      1,
		PhysicallyValid: feature.PhysicallyValid(potency, terp),
		LnBaseline:      m.Baseline().LnViscosity(req.TemperatureC),
	}
	if !out.PhysicallyValid {
		out.Warnings = append(out.Warnings, fmt.Errorf("%w: terpene %.4f exceeds %.4f for potency %.4f",
			errs.ErrPhysicalConstraint, terp, feature.TheoreticalMaxTerpene(potency), potency))
	}

	switch v := m.(type) {
	case *model.TwoLevel:
		out.LnResidual = out.warn(v.Residual.Eval(in))
		if v.Composition != nil && !in.IsRaw && terp > 0 {
			resolved := p.gen.Profiles().Resolve(media, name, terp)
			out.Profile = &resolved
			out.Confidence = resolved.Confidence
			out.LnComposition = out.warn(v.Composition.EvalComposition(resolved.Compounds))
		}
	case *model.Consolidated:
		out.LnResidual = out.warn(v.Residual.Eval(in))
	}

	out.Viscosity = positiveExp(out.LnBaseline + out.LnResidual + out.LnComposition)

	return out, nil
}

// PredictWithConfidence returns the viscosity together with the profile
// confidence.
func (p *Predictor) PredictWithConfidence(req Request) (float64, float64, error) {
	pred, err := p.Predict(req)
	if err != nil {
		return 0, 0, err
	}

	return pred.Viscosity, pred.Confidence, nil
}

func (out *Prediction) warn(v float64, warning error) float64 {
	if warning != nil {
		out.Warnings = append(out.Warnings, warning)
	}

	return v
}

// isRaw classifies the request. Without a terpene name only a zero terpene
// fraction is raw oil.
func isRaw(media, name string, terp float64) bool {
	if name == "" {
		return terp == 0
	}

	return dataset.IsRaw(media, name)
}

func validate(req Request) error {
	switch {
	case req.Media == "":
		return fmt.Errorf("%w: media is required", errs.ErrInvalidInput)
	case !finite(req.TemperatureC):
		return fmt.Errorf("%w: temperature %g", errs.ErrInvalidInput, req.TemperatureC)
	case req.TemperatureC <= -273.15:
		return fmt.Errorf("%w: temperature %g °C is below absolute zero", errs.ErrInvalidInput, req.TemperatureC)
	case !finite(req.TerpenePct) || req.TerpenePct < 0:
		return fmt.Errorf("%w: terpene percentage %g", errs.ErrInvalidInput, req.TerpenePct)
	case req.Potency != nil && (!finite(*req.Potency) || *req.Potency < 0):
		return fmt.Errorf("%w: potency %g", errs.ErrInvalidInput, *req.Potency)
	}

	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// positiveExp is exp clamped to the positive finite range.
func positiveExp(x float64) float64 {
	v := math.Exp(x)
	switch {
	case v == 0:
		return math.SmallestNonzeroFloat64
	case math.IsInf(v, 1):
		return math.MaxFloat64
	}

	return v
}
