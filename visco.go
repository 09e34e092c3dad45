// Package visco predicts the viscosity of cannabinoid oil and terpene blends
// and solves for the terpene dose that reaches a target viscosity.
//
// Models are trained per media type (D8, D9, Liquid Diamonds, ...) from a
// table of historical measurements. Each model combines an Arrhenius
// baseline in 1/T with a residual regression on potency and terpene content,
// plus an optional correction from the terpene blend's compound profile.
// Trained models are published as immutable generations in an on-disk
// repository; predictions always see one complete generation.
//
// # Basic Usage
//
// Training from the master dataset and publishing a generation:
//
//	engine, _ := visco.Open("models", visco.WithLogger(logger))
//	records, _ := dataset.LoadCSV("data/master.csv")
//	result, gen, _ := engine.Train(ctx, records)
//
// Predicting and solving against the current generation:
//
//	pred, _ := engine.Predict(predictor.Request{
//	    Media:        "D9",
//	    TerpenePct:   0.05,
//	    TemperatureC: 25,
//	    TerpeneName:  "Grape Ape",
//	})
//	sol, _ := engine.Solve(solver.NewQuery("D9", 500_000))
//	fmt.Println(sol.TerpenePct, sol.PhysicallyValid)
//
// # Package Structure
//
// Engine wraps the artifact, trainer, predictor, solver and calibrate
// packages for the common cases. Use those packages directly for finer
// control, for example to train without publishing or to hold a predictor
// on a specific generation.
package visco

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arloliu/visco/artifact"
	"github.com/arloliu/visco/calibrate"
	"github.com/arloliu/visco/dataset"
	"github.com/arloliu/visco/format"
	"github.com/arloliu/visco/formulation"
	"github.com/arloliu/visco/internal/options"
	"github.com/arloliu/visco/predictor"
	"github.com/arloliu/visco/solver"
	"github.com/arloliu/visco/trainer"
)

type engineConfig struct {
	logger      *zap.Logger
	repoOpts    []artifact.RepositoryOption
	trainerOpts []trainer.Option
	solverOpts  []solver.Option
	prefer      format.ModelVariant
	store       formulation.Store
	masterCSV   string
}

// Option configures Open.
type Option = options.Option[*engineConfig]

// WithLogger sets the logger shared by the engine's components.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithRepositoryOptions passes options to the artifact repository.
func WithRepositoryOptions(opts ...artifact.RepositoryOption) Option {
	return options.NoError(func(c *engineConfig) {
		c.repoOpts = append(c.repoOpts, opts...)
	})
}

// WithTrainerOptions passes options to every training run.
func WithTrainerOptions(opts ...trainer.Option) Option {
	return options.NoError(func(c *engineConfig) {
		c.trainerOpts = append(c.trainerOpts, opts...)
	})
}

// WithSolverOptions passes options to the inverse solver.
func WithSolverOptions(opts ...solver.Option) Option {
	return options.NoError(func(c *engineConfig) {
		c.solverOpts = append(c.solverOpts, opts...)
	})
}

// WithPreferredVariant selects the model variant used when a media type has
// both.
func WithPreferredVariant(v format.ModelVariant) Option {
	return options.New(func(c *engineConfig) error {
		if v != format.VariantTwoLevel && v != format.VariantConsolidated {
			return fmt.Errorf("unknown model variant: %d", v)
		}
		c.prefer = v

		return nil
	})
}

// WithFormulations sets where completed calibrations are recorded. When
// masterCSV is not empty each formulation is also appended to that master
// dataset.
func WithFormulations(store formulation.Store, masterCSV string) Option {
	return options.NoError(func(c *engineConfig) {
		c.store = store
		c.masterCSV = masterCSV
	})
}

// Engine answers predictions and solves against the repository's current
// generation and publishes new generations from training runs. It is safe
// for concurrent use.
type Engine struct {
	cfg      engineConfig
	repo     *artifact.Repository
	trainer  *trainer.Trainer
	recorder *formulation.Recorder
	lower    float64
	upper    float64
}

// Open opens or creates the model repository at dir.
func Open(dir string, opts ...Option) (*Engine, error) {
	cfg := engineConfig{logger: zap.NewNop(), prefer: format.VariantTwoLevel}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	repoOpts := append([]artifact.RepositoryOption{artifact.WithLogger(cfg.logger)}, cfg.repoOpts...)
	repo, err := artifact.NewRepository(dir, repoOpts...)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	trainerOpts := append([]trainer.Option{trainer.WithLogger(cfg.logger)}, cfg.trainerOpts...)
	tr, err := trainer.New(trainerOpts...)
	if err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg, repo: repo, trainer: tr}

	s, err := e.solver()
	if err != nil {
		return nil, err
	}
	e.lower, e.upper = s.Bounds()

	if cfg.store != nil {
		e.recorder = formulation.NewRecorder(cfg.store, cfg.masterCSV, cfg.logger)
	}

	return e, nil
}

// Repository returns the underlying artifact repository.
func (e *Engine) Repository() *artifact.Repository { return e.repo }

// Generation returns the current generation.
func (e *Engine) Generation() *artifact.Generation { return e.repo.Current() }

// Reload re-reads the current generation from disk, picking up generations
// published by other processes.
func (e *Engine) Reload() (*artifact.Generation, error) {
	return e.repo.Reload()
}

// Predictor returns a predictor bound to the current generation. It keeps
// that generation even after a later publish.
func (e *Engine) Predictor() (*predictor.Predictor, error) {
	return predictor.New(e.repo.Current(), predictor.WithPreferredVariant(e.cfg.prefer))
}

func (e *Engine) solver() (*solver.Solver, error) {
	p, err := e.Predictor()
	if err != nil {
		return nil, err
	}

	return solver.New(p, e.cfg.solverOpts...)
}

// Predict predicts viscosity with the current generation. Warnings are
// logged and returned on the prediction.
func (e *Engine) Predict(req predictor.Request) (predictor.Prediction, error) {
	p, err := e.Predictor()
	if err != nil {
		return predictor.Prediction{}, err
	}

	pred, err := p.Predict(req)
	if err != nil {
		return predictor.Prediction{}, err
	}
	for _, w := range pred.Warnings {
		e.cfg.logger.Warn("prediction warning",
			zap.String("media", req.Media),
			zap.Float64("terpene_pct", pred.TerpenePct),
			zap.Error(w),
		)
	}

	return pred, nil
}

// Solve finds the terpene fraction for q with the current generation.
func (e *Engine) Solve(q solver.Query) (solver.Solution, error) {
	return e.SolveWithin(q, e.lower, e.upper)
}

// SolveWithin is Solve over [lower, upper].
func (e *Engine) SolveWithin(q solver.Query, lower, upper float64) (solver.Solution, error) {
	s, err := e.solver()
	if err != nil {
		return solver.Solution{}, err
	}

	sol, err := s.SolveWithin(q, lower, upper)
	if err != nil {
		return solver.Solution{}, err
	}
	for _, w := range sol.Warnings {
		e.cfg.logger.Warn("solve warning",
			zap.String("media", q.Media),
			zap.Float64("target", q.Target),
			zap.Float64("terpene_pct", sol.TerpenePct),
			zap.Error(w),
		)
	}

	return sol, nil
}

// Bounds returns the solver's terpene fraction interval.
func (e *Engine) Bounds() (lower, upper float64) { return e.lower, e.upper }

// SolveBatch solves independent queries concurrently against one generation.
func (e *Engine) SolveBatch(ctx context.Context, queries []solver.Query, concurrency int) ([]solver.BatchResult, error) {
	s, err := e.solver()
	if err != nil {
		return nil, err
	}

	return s.SolveBatch(ctx, queries, concurrency)
}

// Train trains on records and publishes the resulting models as a new
// generation. Media types without enough data are reported in the result
// and skipped; if none can be trained the current generation is kept and
// the error wraps errs.ErrInsufficientData.
func (e *Engine) Train(ctx context.Context, records []dataset.Record) (*trainer.Result, *artifact.Generation, error) {
	res, err := e.trainer.TrainRecords(ctx, records)
	if err != nil {
		return nil, nil, err
	}

	gen, err := e.repo.Publish(res.Models)
	if err != nil {
		return res, nil, fmt.Errorf("publish models: %w", err)
	}

	return res, gen, nil
}

// Calibrator returns a new calibrator. Its model path always uses the
// generation current at the time of the call, and completed formulations go
// to the engine's formulation store when one is configured.
func (e *Engine) Calibrator(opts ...calibrate.Option) (*calibrate.Calibrator, error) {
	base := []calibrate.Option{
		calibrate.WithSolver(liveSolver{e}),
		calibrate.WithLogger(e.cfg.logger),
	}
	if e.recorder != nil {
		base = append(base, calibrate.WithRecorder(e.recorder))
	}

	return calibrate.New(append(base, opts...)...)
}

// Formulations returns the formulation store, or nil.
func (e *Engine) Formulations() formulation.Store { return e.cfg.store }

// liveSolver resolves the current generation on every solve.
type liveSolver struct{ e *Engine }

func (l liveSolver) SolveWithin(q solver.Query, lower, upper float64) (solver.Solution, error) {
	return l.e.SolveWithin(q, lower, upper)
}

func (l liveSolver) Bounds() (float64, float64) { return l.e.Bounds() }
