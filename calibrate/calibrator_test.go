package calibrate

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/visco/artifact"
	"github.com/arloliu/visco/dataset"
	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/format"
	"github.com/arloliu/visco/formulation"
	"github.com/arloliu/visco/internal/synth"
	"github.com/arloliu/visco/predictor"
	"github.com/arloliu/visco/solver"
	"github.com/arloliu/visco/trainer"
)

type stubSolver struct {
	sol   solver.Solution
	err   error
	calls []solver.Query
	lower float64
}

func (s *stubSolver) SolveWithin(q solver.Query, lower, upper float64) (solver.Solution, error) {
	s.calls = append(s.calls, q)
	s.lower = lower

	return s.sol, s.err
}

func (s *stubSolver) Bounds() (float64, float64) { return solver.DefaultLower, solver.DefaultUpper }

type memRecorder struct {
	mu      sync.Mutex
	records []*formulation.Formulation
	err     error
}

func (r *memRecorder) Record(_ context.Context, f *formulation.Formulation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, f)

	return nil
}

func ptr(v float64) *float64 { return &v }

func TestRawViscosity(t *testing.T) {
	require.Equal(t, 54_346_667.0, RawViscosity("D8"))
	require.Equal(t, 20_000_000.0, RawViscosity("D9"))
	require.Equal(t, 20_000_000.0, RawViscosity("liquid diamonds"))
	require.Equal(t, 2_000_000.0, RawViscosity("Other"))
	require.Equal(t, DefaultRawViscosity, RawViscosity("Rosin"))
}

func TestFitDecay_TwoPoint(t *testing.T) {
	const (
		raw    = 20_000_000.0
		p1     = 0.01
		v1     = 2_000_000.0
		target = 500_000.0
		mass   = 100.0
	)

	d, err := FitDecay(raw, p1, v1)
	require.NoError(t, err)
	require.InDelta(t, math.Log(10)/p1, d.K, 1e-9)
	require.InEpsilon(t, v1, d.Viscosity(p1), 1e-12)

	total := d.Fraction(target)
	require.InEpsilon(t, target, raw*math.Exp(-d.K*total), 1e-9)

	c, err := New()
	require.NoError(t, err)
	step1, err := c.Begin(Batch{Media: "D9", OilMass: mass, Target: target})
	require.NoError(t, err)
	require.Equal(t, p1, step1.Fraction)
	require.Equal(t, 1.0, step1.Amount)

	step2, err := c.RecordStep1(v1)
	require.NoError(t, err)
	require.Equal(t, formulation.MethodDecay, step2.Method)
	require.InDelta(t, max(0, total-p1)*mass, step2.Amount, 1e-9)
	require.InDelta(t, total, step2.TotalFraction, 1e-12)
	require.InEpsilon(t, target, step2.ExpectedViscosity, 1e-9)
	require.Nil(t, step2.Solution)
	require.NoError(t, step2.Fallback)
}

func TestFitDecay_Errors(t *testing.T) {
	_, err := FitDecay(0, 0.01, 1)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
	_, err = FitDecay(2e7, 0, 1e6)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
	_, err = FitDecay(2e7, 0.01, 0)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
	_, err = FitDecay(2e7, 0.01, 3e7)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestCalibrator_FirstDose(t *testing.T) {
	tests := []struct {
		name   string
		media  string
		target float64
		want   float64
	}{
		{"thin target", "D9", 500_000, LargeFirstDose},
		{"half raw", "D9", 10_000_000, SmallFirstDose},
		{"thick target", "Other", 1_500_000, SmallFirstDose},
		{"unknown media", "Rosin", 1_000_000, LargeFirstDose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New()
			require.NoError(t, err)

			step1, err := c.Begin(Batch{Media: tt.media, OilMass: 50, Target: tt.target})
			require.NoError(t, err)
			require.Equal(t, tt.want, step1.Fraction)
			require.InDelta(t, tt.want*50, step1.Amount, 1e-12)
			require.Equal(t, StateAwaitingStep1, c.State())
		})
	}
}

func TestCalibrator_TargetAboveStep1(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	_, err = c.Begin(Batch{Media: "D9", OilMass: 100, Target: 5_000_000})
	require.NoError(t, err)

	step2, err := c.RecordStep1(2_000_000)
	require.NoError(t, err)
	require.Zero(t, step2.Amount)
	require.Equal(t, 0.01, step2.TotalFraction)
	require.InEpsilon(t, 2_000_000, step2.ExpectedViscosity, 1e-9)
}

func TestCalibrator_StateMachine(t *testing.T) {
	rec := &memRecorder{}
	c, err := New(WithRecorder(rec))
	require.NoError(t, err)
	ctx := context.Background()

	require.Equal(t, StateIdle, c.State())

	_, err = c.RecordStep1(1e6)
	require.ErrorIs(t, err, errs.ErrInvalidState)
	_, err = c.RecordStep2(ctx, 1e6)
	require.ErrorIs(t, err, errs.ErrInvalidState)

	batch := Batch{
		Media:        "D9",
		MediaBrand:   "Acme",
		Terpene:      "Grape Ape",
		TerpeneBrand: "Blendco",
		OilMass:      100,
		Target:       500_000,
		D9THC:        ptr(0.85),
	}
	_, err = c.Begin(batch)
	require.NoError(t, err)

	_, err = c.Begin(batch)
	require.ErrorIs(t, err, errs.ErrInvalidState)
	_, err = c.RecordStep2(ctx, 1e6)
	require.ErrorIs(t, err, errs.ErrInvalidState)
	_, err = c.RecordStep1(-1)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
	require.Equal(t, StateAwaitingStep1, c.State())

	step2, err := c.RecordStep1(2_000_000)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingStep2, c.State())

	_, err = c.RecordStep1(2_000_000)
	require.ErrorIs(t, err, errs.ErrInvalidState)

	f, err := c.RecordStep2(ctx, 510_000)
	require.NoError(t, err)
	require.Equal(t, StateComplete, c.State())
	require.Len(t, rec.records, 1)
	require.Same(t, f, rec.records[0])

	require.Equal(t, "D9_Acme_Grape Ape_Blendco", f.Key())
	require.Equal(t, 1.0, f.Step1Amount)
	require.Equal(t, 2_000_000.0, f.Step1Viscosity)
	require.InDelta(t, step2.Amount, f.Step2Amount, 1e-12)
	require.Equal(t, 510_000.0, f.Step2Viscosity)
	require.InDelta(t, step2.TotalFraction, f.TotalTerpenePct, 1e-12)
	require.InDelta(t, 1-f.TotalTerpenePct, f.FinalPotency, 1e-12)
	require.Equal(t, formulation.MethodDecay, f.Method)
	require.Equal(t, 0.85, *f.D9THC)

	// a completed calibrator starts over
	_, err = c.Begin(batch)
	require.NoError(t, err)
	c.Reset()
	require.Equal(t, StateIdle, c.State())
}

func TestCalibrator_RecordFailureIsRetryable(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	c, err := New(WithRecorder(rec))
	require.NoError(t, err)

	_, err = c.Begin(Batch{Media: "D9", OilMass: 100, Target: 500_000})
	require.NoError(t, err)
	_, err = c.RecordStep1(2_000_000)
	require.NoError(t, err)

	_, err = c.RecordStep2(context.Background(), 500_000)
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, StateAwaitingStep2, c.State())

	rec.err = nil
	_, err = c.RecordStep2(context.Background(), 500_000)
	require.NoError(t, err)
	require.Len(t, rec.records, 1)
}

func TestCalibrator_MirrorRetryStoresOnce(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))
	master := filepath.Join(blocker, "master.csv")

	store := formulation.NewFileStore(filepath.Join(dir, "formulations.jsonl"), nil)
	c, err := New(WithRecorder(formulation.NewRecorder(store, master, nil)))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Begin(Batch{Media: "D9", Terpene: "Grape Ape", OilMass: 100, Target: 500_000})
	require.NoError(t, err)
	_, err = c.RecordStep1(2_000_000)
	require.NoError(t, err)

	_, err = c.RecordStep2(ctx, 510_000)
	require.ErrorIs(t, err, formulation.ErrMirrorFailed)
	require.Equal(t, StateAwaitingStep2, c.State())

	require.NoError(t, os.Remove(blocker))
	f, err := c.RecordStep2(ctx, 510_000)
	require.NoError(t, err)
	require.Equal(t, StateComplete, c.State())

	stored, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, f.ID, stored[0].ID)

	rows, err := dataset.LoadCSV(master)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestCalibrator_InvalidBatch(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	_, err = c.Begin(Batch{OilMass: 1, Target: 1})
	require.ErrorIs(t, err, errs.ErrInvalidInput)
	_, err = c.Begin(Batch{Media: "D9", Target: 1})
	require.ErrorIs(t, err, errs.ErrInvalidInput)
	_, err = c.Begin(Batch{Media: "D9", OilMass: 1})
	require.ErrorIs(t, err, errs.ErrInvalidTarget)
	require.Equal(t, StateIdle, c.State())

	_, err = New(WithRawViscosity("", 1))
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestCalibrator_RawViscosityOverride(t *testing.T) {
	c, err := New(WithRawViscosity("Rosin", 800_000))
	require.NoError(t, err)
	require.Equal(t, 800_000.0, c.RawViscosity("rosin"))
	require.Equal(t, 18_000_000.0, RawViscosity("Rosin"))

	step1, err := c.Begin(Batch{Media: "Rosin", OilMass: 10, Target: 500_000})
	require.NoError(t, err)
	require.Equal(t, SmallFirstDose, step1.Fraction)
}

func TestCalibrator_ModelPath(t *testing.T) {
	stub := &stubSolver{sol: solver.Solution{TerpenePct: 0.04, Viscosity: 499_000, Converged: true, PhysicallyValid: true}}
	c, err := New(WithSolver(stub))
	require.NoError(t, err)

	_, err = c.Begin(Batch{Media: "D9", Terpene: "Grape Ape", OilMass: 200, Target: 500_000})
	require.NoError(t, err)

	step2, err := c.RecordStep1(2_000_000)
	require.NoError(t, err)
	require.Equal(t, formulation.MethodModel, step2.Method)
	require.InDelta(t, 0.03, step2.Fraction, 1e-12)
	require.InDelta(t, 6.0, step2.Amount, 1e-9)
	require.Equal(t, 499_000.0, step2.ExpectedViscosity)
	require.NotNil(t, step2.Solution)

	require.Len(t, stub.calls, 1)
	q := stub.calls[0]
	require.Equal(t, 0.01, stub.lower)
	require.Equal(t, formulation.MeasurementTemperature, q.TemperatureC)
	require.Equal(t, "Grape Ape", q.TerpeneName)
	require.NotNil(t, q.Potency)
	require.InDelta(t, 0.99, *q.Potency, 1e-12)
}

func TestCalibrator_ModelPathPotency(t *testing.T) {
	tests := []struct {
		name  string
		batch Batch
		want  float64
	}{
		{"explicit total", Batch{Potency: ptr(0.8), D9THC: ptr(0.5)}, 0.8},
		{"cannabinoid sum", Batch{D9THC: ptr(0.80), D8THC: ptr(0.05)}, 0.85},
		{"cannabinoid sum in percent", Batch{D9THC: ptr(80), D8THC: ptr(5)}, 0.85},
		{"d8 only", Batch{D8THC: ptr(0.9)}, 0.9},
		{"none given", Batch{}, 0.99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubSolver{sol: solver.Solution{TerpenePct: 0.04, Viscosity: 500_000, Converged: true}}
			c, err := New(WithSolver(stub))
			require.NoError(t, err)

			b := tt.batch
			b.Media, b.OilMass, b.Target = "D9", 100, 500_000
			_, err = c.Begin(b)
			require.NoError(t, err)
			_, err = c.RecordStep1(2_000_000)
			require.NoError(t, err)

			require.Len(t, stub.calls, 1)
			require.NotNil(t, stub.calls[0].Potency)
			require.InDelta(t, tt.want, *stub.calls[0].Potency, 1e-12)
		})
	}
}

func TestCalibrator_ModelFallback(t *testing.T) {
	for _, cause := range []error{
		&errs.ModelNotFoundError{Media: "D9"},
		errs.ErrInvalidInput,
	} {
		stub := &stubSolver{err: cause}
		c, err := New(WithSolver(stub))
		require.NoError(t, err)

		_, err = c.Begin(Batch{Media: "D9", OilMass: 100, Target: 500_000})
		require.NoError(t, err)

		step2, err := c.RecordStep1(2_000_000)
		require.NoError(t, err)
		require.Equal(t, formulation.MethodDecay, step2.Method)
		require.ErrorIs(t, step2.Fallback, cause)
		require.InEpsilon(t, 500_000, step2.ExpectedViscosity, 1e-9)
	}
}

func TestCalibrator_TrainedModel(t *testing.T) {
	tr, err := trainer.New(trainer.WithFeatureMode(format.FeatureTerpene))
	require.NoError(t, err)
	res, err := tr.TrainRecords(context.Background(), synth.Records(synth.Config{Media: "D9", Seed: 5}))
	require.NoError(t, err)

	repo, err := artifact.NewRepository(t.TempDir())
	require.NoError(t, err)
	g, err := repo.Publish(res.Models)
	require.NoError(t, err)
	p, err := predictor.New(g)
	require.NoError(t, err)
	s, err := solver.New(p)
	require.NoError(t, err)

	dir := t.TempDir()
	master := filepath.Join(dir, "master.csv")
	rec := formulation.NewRecorder(formulation.NewFileStore(filepath.Join(dir, "formulations.jsonl"), nil), master, nil)

	c, err := New(WithSolver(s), WithRecorder(rec))
	require.NoError(t, err)

	const target = 500_000.0
	_, err = c.Begin(Batch{Media: "D9", OilMass: 100, Target: target, Potency: ptr(0.8)})
	require.NoError(t, err)

	step2, err := c.RecordStep1(2_000_000)
	require.NoError(t, err)
	require.Equal(t, formulation.MethodModel, step2.Method)
	require.True(t, step2.Solution.Converged)
	require.InEpsilon(t, target, step2.ExpectedViscosity, 0.01)

	want := math.Log(synth.DefaultLaw.Viscosity(25, 0, 0.8)/target) / -synth.DefaultLaw.Terpene
	require.InDelta(t, want, step2.TotalFraction, 0.005)

	_, err = c.RecordStep2(context.Background(), 505_000)
	require.NoError(t, err)

	// an untrained media falls back to the decay fit
	_, err = c.Begin(Batch{Media: "D8", OilMass: 100, Target: target})
	require.NoError(t, err)
	step2, err = c.RecordStep1(5_000_000)
	require.NoError(t, err)
	require.Equal(t, formulation.MethodDecay, step2.Method)
	require.ErrorIs(t, step2.Fallback, errs.ErrModelNotFound)
	_, err = c.RecordStep2(context.Background(), 480_000)
	require.NoError(t, err)

	rows, err := dataset.LoadCSV(master)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	stored, err := rec.Store().List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, formulation.MethodModel, stored[0].Method)
	require.Equal(t, formulation.MethodDecay, stored[1].Method)
}
