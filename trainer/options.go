package trainer

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/arloliu/visco/dataset"
	"github.com/arloliu/visco/format"
	"github.com/arloliu/visco/internal/options"
	"github.com/arloliu/visco/regression"
)

const (
	DefaultFolds              = 5
	DefaultMinRows            = 10
	DefaultMinCompositionRows = 5
	// MinCompositionCVRows is the row count below which the composition term
	// is fitted without cross-validation.
	MinCompositionCVRows = 10
	// MinOneHotRows is the number of rows a terpene needs in a media to get
	// its own one-hot column in the consolidated variant.
	MinOneHotRows = 2

	compositionTrees    = 50
	compositionMaxDepth = 2
	compositionMinLeaf  = 2
)

// Config holds trainer settings.
type Config struct {
	Regressor          format.RegressorKind
	Alpha              float64
	BaselineAlpha      float64
	FeatureMode        format.FeatureMode
	Folds              int
	Seed               uint64
	MinRows            int
	MinCompositionRows int
	Concurrency        int
	Consolidated       bool
	KeepInvalid        bool
	Progress           func(Progress)
	Logger             *zap.Logger
}

func defaultConfig() Config {
	return Config{
		Regressor:          format.RegressorRidge,
		Alpha:              regression.DefaultAlpha,
		BaselineAlpha:      regression.DefaultBaselineAlpha,
		FeatureMode:        format.FeatureBoth,
		Folds:              DefaultFolds,
		Seed:               regression.DefaultSeed,
		MinRows:            DefaultMinRows,
		MinCompositionRows: DefaultMinCompositionRows,
		Concurrency:        runtime.GOMAXPROCS(0),
		Logger:             zap.NewNop(),
	}
}

// Option is a functional option for Trainer.
type Option = options.Option[*Config]

// WithRegressor sets the residual and composition regressor kind.
func WithRegressor(kind format.RegressorKind) Option {
	return options.New(func(cfg *Config) error {
		switch kind {
		case format.RegressorRidge, format.RegressorOLS, format.RegressorForest:
			cfg.Regressor = kind
			return nil
		default:
			return fmt.Errorf("unsupported regressor kind: %s", kind)
		}
	})
}

// WithAlpha sets the ridge strength for the residual and composition terms.
func WithAlpha(alpha float64) Option {
	return options.New(func(cfg *Config) error {
		if alpha < 0 {
			return fmt.Errorf("alpha must be non-negative, got %g", alpha)
		}
		cfg.Alpha = alpha

		return nil
	})
}

// WithBaselineAlpha sets the ridge strength for the Arrhenius baseline.
func WithBaselineAlpha(alpha float64) Option {
	return options.New(func(cfg *Config) error {
		if alpha < 0 {
			return fmt.Errorf("baseline alpha must be non-negative, got %g", alpha)
		}
		cfg.BaselineAlpha = alpha

		return nil
	})
}

// WithFeatureMode selects the residual feature set.
func WithFeatureMode(mode format.FeatureMode) Option {
	return options.New(func(cfg *Config) error {
		switch mode {
		case format.FeatureBoth, format.FeaturePotency, format.FeatureTerpene:
			cfg.FeatureMode = mode
			return nil
		default:
			return fmt.Errorf("unsupported feature mode: %s", mode)
		}
	})
}

// WithFolds sets the cross-validation fold count.
func WithFolds(k int) Option {
	return options.New(func(cfg *Config) error {
		if k < 2 {
			return fmt.Errorf("folds must be at least 2, got %d", k)
		}
		cfg.Folds = k

		return nil
	})
}

// WithSeed sets the seed for fold shuffling and tree bootstraps.
func WithSeed(seed uint64) Option {
	return options.NoError(func(cfg *Config) { cfg.Seed = seed })
}

// WithMinRows sets the minimum clean rows a media type needs.
func WithMinRows(n int) Option {
	return options.New(func(cfg *Config) error {
		if n < 2 {
			return fmt.Errorf("min rows must be at least 2, got %d", n)
		}
		cfg.MinRows = n

		return nil
	})
}

// WithConcurrency bounds the number of media types trained at once.
func WithConcurrency(n int) Option {
	return options.New(func(cfg *Config) error {
		if n < 1 {
			return fmt.Errorf("concurrency must be at least 1, got %d", n)
		}
		cfg.Concurrency = n

		return nil
	})
}

// WithConsolidated also trains the consolidated variant per media type.
func WithConsolidated(enabled bool) Option {
	return options.NoError(func(cfg *Config) { cfg.Consolidated = enabled })
}

// WithKeepInvalid keeps rows above the theoretical terpene maximum.
func WithKeepInvalid(keep bool) Option {
	return options.NoError(func(cfg *Config) { cfg.KeepInvalid = keep })
}

// WithProgress registers a callback invoked as each media type advances. The
// callback may be called from several goroutines at once.
func WithProgress(fn func(Progress)) Option {
	return options.NoError(func(cfg *Config) { cfg.Progress = fn })
}

// WithLogger sets the trainer logger.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(cfg *Config) {
		if logger != nil {
			cfg.Logger = logger
		}
	})
}

func (cfg *Config) residualFitter() (regression.Fitter, error) {
	return regression.NewFitter(cfg.Regressor,
		regression.WithAlpha(cfg.Alpha),
		regression.WithSeed(cfg.Seed),
	)
}

func (cfg *Config) compositionFitter() (regression.Fitter, error) {
	return regression.NewFitter(cfg.Regressor,
		regression.WithAlpha(cfg.Alpha),
		regression.WithTrees(compositionTrees),
		regression.WithMaxDepth(compositionMaxDepth),
		regression.WithMinLeaf(compositionMinLeaf),
		regression.WithSeed(cfg.Seed),
	)
}

func (cfg *Config) cleanOptions() []dataset.CleanOption {
	return []dataset.CleanOption{
		dataset.WithKeepInvalid(cfg.KeepInvalid),
		dataset.WithCleanLogger(cfg.Logger),
	}
}
