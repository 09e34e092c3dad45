package regression

import (
	"fmt"

	"github.com/arloliu/visco/internal/options"
)

const (
	DefaultAlpha    = 1.0
	DefaultTrees    = 100
	DefaultMaxDepth = 4
	DefaultMinLeaf  = 5
	DefaultSeed     = 42
)

// FitConfig holds estimator hyperparameters.
type FitConfig struct {
	Alpha    float64
	Trees    int
	MaxDepth int
	MinLeaf  int
	Seed     uint64
}

func defaultFitConfig() FitConfig {
	return FitConfig{
		Alpha:    DefaultAlpha,
		Trees:    DefaultTrees,
		MaxDepth: DefaultMaxDepth,
		MinLeaf:  DefaultMinLeaf,
		Seed:     DefaultSeed,
	}
}

func newFitConfig(opts ...FitOption) (FitConfig, error) {
	cfg := defaultFitConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return FitConfig{}, err
	}

	return cfg, nil
}

// FitOption is a functional option for FitConfig.
type FitOption = options.Option[*FitConfig]

// WithAlpha sets the ridge regularization strength.
func WithAlpha(alpha float64) FitOption {
	return options.New(func(cfg *FitConfig) error {
		if alpha < 0 {
			return fmt.Errorf("alpha must be non-negative, got %g", alpha)
		}
		cfg.Alpha = alpha

		return nil
	})
}

// WithTrees sets the number of trees in a forest.
func WithTrees(n int) FitOption {
	return options.New(func(cfg *FitConfig) error {
		if n <= 0 {
			return fmt.Errorf("tree count must be positive, got %d", n)
		}
		cfg.Trees = n

		return nil
	})
}

// WithMaxDepth sets the maximum depth of each tree.
func WithMaxDepth(depth int) FitOption {
	return options.New(func(cfg *FitConfig) error {
		if depth <= 0 {
			return fmt.Errorf("max depth must be positive, got %d", depth)
		}
		cfg.MaxDepth = depth

		return nil
	})
}

// WithMinLeaf sets the minimum number of samples in a tree leaf.
func WithMinLeaf(n int) FitOption {
	return options.New(func(cfg *FitConfig) error {
		if n <= 0 {
			return fmt.Errorf("min leaf must be positive, got %d", n)
		}
		cfg.MinLeaf = n

		return nil
	})
}

// WithSeed sets the random seed for bootstrap sampling.
func WithSeed(seed uint64) FitOption {
	return options.NoError(func(cfg *FitConfig) {
		cfg.Seed = seed
	})
}
