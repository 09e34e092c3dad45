// Package calibrate implements the two-step bench calibration used when a
// batch of oil is thinned to a target viscosity.
//
// The operator adds a small first dose, measures, then adds the computed
// second dose and measures again. The second dose comes from the inverse
// solver when a trained model exists for the media, and from a two-point
// exponential decay fit otherwise. Completed calibrations are recorded as
// formulations.
package calibrate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/feature"
	"github.com/arloliu/visco/formulation"
	"github.com/arloliu/visco/internal/options"
	"github.com/arloliu/visco/solver"
)

const (
	// LargeFirstDose and SmallFirstDose are the step 1 terpene fractions.
	// The large dose is used when the target is under half the raw viscosity.
	LargeFirstDose = 0.01
	SmallFirstDose = 0.001
)

// State is the calibrator's position in the two-step procedure.
type State uint8

const (
	StateIdle State = iota
	StateAwaitingStep1
	StateAwaitingStep2
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingStep1:
		return "awaiting step 1 measurement"
	case StateAwaitingStep2:
		return "awaiting step 2 measurement"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Solver is the subset of *solver.Solver the calibrator uses.
type Solver interface {
	SolveWithin(q solver.Query, lower, upper float64) (solver.Solution, error)
	Bounds() (lower, upper float64)
}

// Recorder persists completed formulations. *formulation.Recorder
// satisfies it.
type Recorder interface {
	Record(ctx context.Context, f *formulation.Formulation) error
}

// Mirrorer is implemented by recorders whose Record can fail after the
// formulation was stored. A retry then calls Mirror instead of Record.
type Mirrorer interface {
	Mirror(ctx context.Context, f *formulation.Formulation) error
}

// Batch describes the oil being calibrated. Potency fields are fractions or
// percents; masses are grams.
type Batch struct {
	Media        string
	MediaBrand   string
	Terpene      string
	TerpeneBrand string
	OilMass      float64
	Target       float64
	// Potency is held fixed by the model path. When nil it is taken as
	// D9THC + D8THC, or 1 - step 1 fraction when neither is set.
	Potency *float64
	D9THC   *float64
	D8THC   *float64
}

// Step1 is the first dose.
type Step1 struct {
	Fraction     float64
	Amount       float64
	RawViscosity float64
}

// Step2 is the computed second dose.
type Step2 struct {
	// Fraction is the additional terpene fraction; TotalFraction includes
	// step 1.
	Fraction          float64
	TotalFraction     float64
	Amount            float64
	ExpectedViscosity float64
	Method            formulation.Method
	// Solution is set when the model path was used.
	Solution *solver.Solution
	// Fallback is why the model path was not used, if it was attempted.
	Fallback error
}

// Calibrator runs one calibration at a time. It is safe for concurrent use;
// out-of-order calls return errs.ErrInvalidState.
type Calibrator struct {
	solver   Solver
	recorder Recorder
	raw      map[string]float64
	logger   *zap.Logger

	mu    sync.Mutex
	state State
	batch Batch
	step1 Step1
	v1    float64
	step2 Step2

	// stored is a formulation already in the store whose mirroring failed.
	stored *formulation.Formulation
}

// Option is a functional option for Calibrator.
type Option = options.Option[*Calibrator]

// WithSolver enables the model path for step 2.
func WithSolver(s Solver) Option {
	return options.NoError(func(c *Calibrator) {
		c.solver = s
	})
}

// WithRecorder sets where completed formulations go.
func WithRecorder(r Recorder) Option {
	return options.NoError(func(c *Calibrator) {
		c.recorder = r
	})
}

// WithRawViscosity overrides the raw viscosity estimate for media.
func WithRawViscosity(media string, viscosity float64) Option {
	return options.New(func(c *Calibrator) error {
		if strings.TrimSpace(media) == "" || !(viscosity > 0) {
			return fmt.Errorf("%w: raw viscosity %q=%g", errs.ErrInvalidInput, media, viscosity)
		}
		c.raw[media] = viscosity

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(c *Calibrator) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// New creates an idle Calibrator. Without a solver every step 2 uses the
// decay fit; without a recorder completed formulations are only returned.
func New(opts ...Option) (*Calibrator, error) {
	c := &Calibrator{
		raw:    make(map[string]float64, len(RawViscosities)),
		logger: zap.NewNop(),
	}
	for media, v := range RawViscosities {
		c.raw[media] = v
	}
	if err := options.Apply(c, opts...); err != nil {
		return nil, err
	}

	return c, nil
}

// State returns the current state.
func (c *Calibrator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// RawViscosity returns the raw viscosity estimate the calibrator uses for
// media.
func (c *Calibrator) RawViscosity(media string) float64 {
	return lookupRaw(c.raw, media)
}

// Begin starts a calibration and returns the first dose.
func (c *Calibrator) Begin(b Batch) (Step1, error) {
	if err := validateBatch(b); err != nil {
		return Step1{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle && c.state != StateComplete {
		return Step1{}, fmt.Errorf("%w: begin while %s", errs.ErrInvalidState, c.state)
	}

	raw := c.RawViscosity(b.Media)
	frac := SmallFirstDose
	if 2*b.Target < raw {
		frac = LargeFirstDose
	}

	c.batch = b
	c.step1 = Step1{Fraction: frac, Amount: frac * b.OilMass, RawViscosity: raw}
	c.v1 = 0
	c.step2 = Step2{}
	c.stored = nil
	c.state = StateAwaitingStep1

	c.logger.Info("calibration started",
		zap.String("media", b.Media),
		zap.String("terpene", b.Terpene),
		zap.Float64("target", b.Target),
		zap.Float64("step1_amount", c.step1.Amount),
	)

	return c.step1, nil
}

// RecordStep1 takes the viscosity measured after the first dose and returns
// the second dose.
func (c *Calibrator) RecordStep1(viscosity float64) (Step2, error) {
	if !(viscosity > 0) || math.IsInf(viscosity, 0) {
		return Step2{}, fmt.Errorf("%w: step 1 viscosity %g", errs.ErrInvalidInput, viscosity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAwaitingStep1 {
		return Step2{}, fmt.Errorf("%w: step 1 measurement while %s", errs.ErrInvalidState, c.state)
	}

	step2, err := c.computeStep2(viscosity)
	if err != nil {
		return Step2{}, err
	}

	c.v1 = viscosity
	c.step2 = step2
	c.state = StateAwaitingStep2

	return step2, nil
}

func (c *Calibrator) computeStep2(v1 float64) (Step2, error) {
	b := c.batch
	p1 := c.step1.Fraction

	var fallback error
	if c.solver != nil {
		step2, err := c.modelStep2(p1)
		if err == nil {
			return step2, nil
		}
		fallback = err

		level := c.logger.Warn
		if errors.Is(err, errs.ErrModelNotFound) {
			level = c.logger.Info
		}
		level("model step 2 unavailable, using decay fit",
			zap.String("media", b.Media),
			zap.Error(err),
		)
	}

	decay, err := FitDecay(c.step1.RawViscosity, p1, v1)
	if err != nil {
		return Step2{}, err
	}

	added := max(0, decay.Fraction(b.Target)-p1)
	step2 := Step2{
		Fraction:          added,
		TotalFraction:     p1 + added,
		Amount:            added * b.OilMass,
		ExpectedViscosity: decay.Viscosity(p1 + added),
		Method:            formulation.MethodDecay,
		Fallback:          fallback,
	}

	c.logger.Info("computed step 2",
		zap.String("media", b.Media),
		zap.String("method", string(step2.Method)),
		zap.Float64("decay_k", decay.K),
		zap.Float64("step2_amount", step2.Amount),
		zap.Float64("expected_viscosity", step2.ExpectedViscosity),
	)

	return step2, nil
}

func (c *Calibrator) modelStep2(p1 float64) (Step2, error) {
	b := c.batch
	potency := batchPotency(b, p1)

	q := solver.Query{
		Media:        b.Media,
		Target:       b.Target,
		TemperatureC: formulation.MeasurementTemperature,
		Potency:      &potency,
		TerpeneName:  b.Terpene,
		TerpeneBrand: b.TerpeneBrand,
	}
	_, upper := c.solver.Bounds()
	sol, err := c.solver.SolveWithin(q, p1, upper)
	if err != nil {
		return Step2{}, err
	}

	added := max(0, sol.TerpenePct-p1)
	step2 := Step2{
		Fraction:          added,
		TotalFraction:     p1 + added,
		Amount:            added * b.OilMass,
		ExpectedViscosity: sol.Viscosity,
		Method:            formulation.MethodModel,
		Solution:          &sol,
	}

	c.logger.Info("computed step 2",
		zap.String("media", b.Media),
		zap.String("method", string(step2.Method)),
		zap.Bool("converged", sol.Converged),
		zap.Float64("step2_amount", step2.Amount),
		zap.Float64("expected_viscosity", step2.ExpectedViscosity),
	)
	for _, w := range sol.Warnings {
		c.logger.Warn("solver warning", zap.String("media", b.Media), zap.Error(w))
	}

	return step2, nil
}

// RecordStep2 takes the final measured viscosity, records the formulation
// and completes the calibration. If recording fails the calibrator stays in
// StateAwaitingStep2 so the call can be retried. When the formulation was
// stored but not mirrored, the retry only mirrors it.
func (c *Calibrator) RecordStep2(ctx context.Context, viscosity float64) (*formulation.Formulation, error) {
	if !(viscosity > 0) || math.IsInf(viscosity, 0) {
		return nil, fmt.Errorf("%w: step 2 viscosity %g", errs.ErrInvalidInput, viscosity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAwaitingStep2 {
		return nil, fmt.Errorf("%w: step 2 measurement while %s", errs.ErrInvalidState, c.state)
	}

	f := c.stored
	if f == nil {
		f = c.newFormulation(viscosity)
	} else if f.Step2Viscosity != viscosity {
		c.logger.Warn("retry keeps the stored step 2 viscosity",
			zap.String("key", f.Key()),
			zap.Float64("stored", f.Step2Viscosity),
			zap.Float64("given", viscosity),
		)
	}

	if err := c.record(ctx, f); err != nil {
		if errors.Is(err, formulation.ErrMirrorFailed) {
			c.stored = f
		}

		return nil, fmt.Errorf("record formulation: %w", err)
	}

	c.stored = nil
	c.state = StateComplete
	c.logger.Info("calibration complete",
		zap.String("key", f.Key()),
		zap.Float64("total_terpene_pct", f.TotalTerpenePct),
		zap.Float64("final_viscosity", f.Step2Viscosity),
		zap.Float64("target", f.TargetViscosity),
	)

	return f, nil
}

func (c *Calibrator) newFormulation(viscosity float64) *formulation.Formulation {
	b := c.batch
	f := &formulation.Formulation{
		Media:             b.Media,
		MediaBrand:        b.MediaBrand,
		Terpene:           b.Terpene,
		TerpeneBrand:      b.TerpeneBrand,
		TargetViscosity:   b.Target,
		OilMass:           b.OilMass,
		Step1Amount:       c.step1.Amount,
		Step1Viscosity:    c.v1,
		Step2Amount:       c.step2.Amount,
		Step2Viscosity:    viscosity,
		ExpectedViscosity: c.step2.ExpectedViscosity,
		D9THC:             b.D9THC,
		D8THC:             b.D8THC,
		Method:            c.step2.Method,
	}
	f.Complete()

	return f
}

func (c *Calibrator) record(ctx context.Context, f *formulation.Formulation) error {
	if c.recorder == nil {
		return nil
	}
	if c.stored == nil {
		return c.recorder.Record(ctx, f)
	}
	if m, ok := c.recorder.(Mirrorer); ok {
		return m.Mirror(ctx, f)
	}

	return nil
}

// Reset abandons any calibration in progress.
func (c *Calibrator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateIdle
	c.batch = Batch{}
	c.step1 = Step1{}
	c.v1 = 0
	c.step2 = Step2{}
	c.stored = nil
}

// batchPotency is the potency held fixed by the model path: the given total,
// else d9 + d8, else 1 - p1.
func batchPotency(b Batch, p1 float64) float64 {
	if b.Potency != nil {
		return *b.Potency
	}

	var sum float64
	if b.D9THC != nil {
		sum += *b.D9THC
	}
	if b.D8THC != nil {
		sum += *b.D8THC
	}
	if sum > 0 {
		return feature.Fraction(sum)
	}

	return 1 - p1
}

func validateBatch(b Batch) error {
	switch {
	case strings.TrimSpace(b.Media) == "":
		return fmt.Errorf("%w: media is required", errs.ErrInvalidInput)
	case !(b.OilMass > 0) || math.IsInf(b.OilMass, 0):
		return fmt.Errorf("%w: oil mass %g", errs.ErrInvalidInput, b.OilMass)
	case !(b.Target > 0) || math.IsInf(b.Target, 0):
		return fmt.Errorf("%w: %g", errs.ErrInvalidTarget, b.Target)
	}

	return nil
}
