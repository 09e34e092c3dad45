// Package config loads the visco command configuration from YAML with
// VISCO_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/visco/artifact"
	"github.com/arloliu/visco/format"
	"github.com/arloliu/visco/profile"
	"github.com/arloliu/visco/regression"
	"github.com/arloliu/visco/solver"
	"github.com/arloliu/visco/trainer"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VISCO_"

// Config is the top-level configuration.
type Config struct {
	// ModelDir is the artifact repository root.
	ModelDir  string `yaml:"model_dir"`
	MasterCSV string `yaml:"master_csv"`
	// ProfileLibrary is an optional JSON terpene profile library.
	ProfileLibrary string             `yaml:"profile_library"`
	Artifact       ArtifactConfig     `yaml:"artifact"`
	Train          TrainConfig        `yaml:"train"`
	Solver         SolverConfig       `yaml:"solver"`
	Formulations   FormulationsConfig `yaml:"formulations"`
	Log            LogConfig          `yaml:"log"`
}

type ArtifactConfig struct {
	Compression string `yaml:"compression"`
	Retention   int    `yaml:"retention"`
}

type TrainConfig struct {
	Regressor     string  `yaml:"regressor"`
	Alpha         float64 `yaml:"alpha"`
	BaselineAlpha float64 `yaml:"baseline_alpha"`
	FeatureMode   string  `yaml:"feature_mode"`
	Folds         int     `yaml:"folds"`
	Seed          uint64  `yaml:"seed"`
	Concurrency   int     `yaml:"concurrency"`
	Consolidated  bool    `yaml:"consolidated"`
	KeepInvalid   bool    `yaml:"keep_invalid"`
}

type SolverConfig struct {
	Lower         float64 `yaml:"lower"`
	Upper         float64 `yaml:"upper"`
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
}

// FormulationsConfig selects the formulation store: "file" keeps a JSON
// lines log at Path, "postgres" connects to DSN.
type FormulationsConfig struct {
	Store string `yaml:"store"`
	Path  string `yaml:"path"`
	DSN   string `yaml:"dsn"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ModelDir:  "models",
		MasterCSV: filepath.Join("data", "master.csv"),
		Artifact: ArtifactConfig{
			Compression: format.CompressionZstd.String(),
			Retention:   artifact.DefaultRetention,
		},
		Train: TrainConfig{
			Regressor:     format.RegressorRidge.String(),
			Alpha:         regression.DefaultAlpha,
			BaselineAlpha: regression.DefaultBaselineAlpha,
			FeatureMode:   format.FeatureBoth.String(),
			Folds:         trainer.DefaultFolds,
			Seed:          regression.DefaultSeed,
		},
		Solver: SolverConfig{
			Lower:         solver.DefaultLower,
			Upper:         solver.DefaultUpper,
			Tolerance:     solver.DefaultTolerance,
			MaxIterations: solver.DefaultMaxEvaluations,
		},
		Formulations: FormulationsConfig{
			Store: "file",
			Path:  filepath.Join("data", "formulations.jsonl"),
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path loads defaults only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	var errList []error
	num := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("MODEL_DIR", &c.ModelDir)
	str("MASTER_CSV", &c.MasterCSV)
	str("PROFILE_LIBRARY", &c.ProfileLibrary)
	str("ARTIFACT_COMPRESSION", &c.Artifact.Compression)
	integer("ARTIFACT_RETENTION", &c.Artifact.Retention)
	str("TRAIN_REGRESSOR", &c.Train.Regressor)
	num("TRAIN_ALPHA", &c.Train.Alpha)
	str("TRAIN_FEATURE_MODE", &c.Train.FeatureMode)
	integer("TRAIN_FOLDS", &c.Train.Folds)
	integer("TRAIN_CONCURRENCY", &c.Train.Concurrency)
	boolean("TRAIN_CONSOLIDATED", &c.Train.Consolidated)
	num("SOLVER_TOLERANCE", &c.Solver.Tolerance)
	str("FORMULATIONS_STORE", &c.Formulations.Store)
	str("FORMULATIONS_PATH", &c.Formulations.Path)
	str("FORMULATIONS_DSN", &c.Formulations.DSN)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errList...)
}

// Validate checks field ranges and enum names.
func (c *Config) Validate() error {
	var errList []error
	if strings.TrimSpace(c.ModelDir) == "" {
		errList = append(errList, errors.New("model_dir is required"))
	}
	if _, err := format.ParseCompressionType(c.Artifact.Compression); err != nil {
		errList = append(errList, fmt.Errorf("artifact.compression: %w", err))
	}
	if c.Artifact.Retention < 1 {
		errList = append(errList, fmt.Errorf("artifact.retention must be at least 1, got %d", c.Artifact.Retention))
	}
	if _, err := format.ParseRegressorKind(c.Train.Regressor); err != nil {
		errList = append(errList, fmt.Errorf("train.regressor: %w", err))
	}
	if _, err := format.ParseFeatureMode(c.Train.FeatureMode); err != nil {
		errList = append(errList, fmt.Errorf("train.feature_mode: %w", err))
	}
	if c.Train.Alpha < 0 || c.Train.BaselineAlpha < 0 {
		errList = append(errList, errors.New("train alphas must be non-negative"))
	}
	if c.Train.Folds < 2 {
		errList = append(errList, fmt.Errorf("train.folds must be at least 2, got %d", c.Train.Folds))
	}
	if !(c.Solver.Lower > 0) || c.Solver.Upper <= c.Solver.Lower || c.Solver.Upper > 1 {
		errList = append(errList, fmt.Errorf("solver bounds [%g, %g] must satisfy 0 < lower < upper <= 1",
			c.Solver.Lower, c.Solver.Upper))
	}
	if !(c.Solver.Tolerance > 0) {
		errList = append(errList, fmt.Errorf("solver.tolerance must be positive, got %g", c.Solver.Tolerance))
	}
	if c.Solver.MaxIterations < 2 {
		errList = append(errList, fmt.Errorf("solver.max_iterations must be at least 2, got %d", c.Solver.MaxIterations))
	}
	switch c.Formulations.Store {
	case "file":
		if c.Formulations.Path == "" {
			errList = append(errList, errors.New("formulations.path is required for the file store"))
		}
	case "postgres":
		if c.Formulations.DSN == "" {
			errList = append(errList, errors.New("formulations.dsn is required for the postgres store"))
		}
	default:
		errList = append(errList, fmt.Errorf("formulations.store: unknown store %q", c.Formulations.Store))
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		errList = append(errList, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errList = append(errList, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	return errors.Join(errList...)
}

// TrainerOptions converts the train section.
func (c *Config) TrainerOptions() ([]trainer.Option, error) {
	kind, err := format.ParseRegressorKind(c.Train.Regressor)
	if err != nil {
		return nil, err
	}
	mode, err := format.ParseFeatureMode(c.Train.FeatureMode)
	if err != nil {
		return nil, err
	}

	opts := []trainer.Option{
		trainer.WithRegressor(kind),
		trainer.WithAlpha(c.Train.Alpha),
		trainer.WithBaselineAlpha(c.Train.BaselineAlpha),
		trainer.WithFeatureMode(mode),
		trainer.WithFolds(c.Train.Folds),
		trainer.WithSeed(c.Train.Seed),
		trainer.WithConsolidated(c.Train.Consolidated),
		trainer.WithKeepInvalid(c.Train.KeepInvalid),
	}
	if c.Train.Concurrency > 0 {
		opts = append(opts, trainer.WithConcurrency(c.Train.Concurrency))
	}

	return opts, nil
}

// RepositoryOptions converts the artifact section.
func (c *Config) RepositoryOptions() ([]artifact.RepositoryOption, error) {
	comp, err := format.ParseCompressionType(c.Artifact.Compression)
	if err != nil {
		return nil, err
	}

	opts := []artifact.RepositoryOption{
		artifact.WithCompression(comp),
		artifact.WithRetention(c.Artifact.Retention),
	}
	if c.ProfileLibrary != "" {
		lib, err := profile.LoadLibrary(c.ProfileLibrary)
		if err != nil {
			return nil, fmt.Errorf("profile library: %w", err)
		}
		opts = append(opts, artifact.WithProfileOptions(profile.WithLibrary(lib)))
	}

	return opts, nil
}

// SolverOptions converts the solver section.
func (c *Config) SolverOptions() []solver.Option {
	return []solver.Option{
		solver.WithBounds(c.Solver.Lower, c.Solver.Upper),
		solver.WithTolerance(c.Solver.Tolerance),
		solver.WithMaxIterations(c.Solver.MaxIterations),
	}
}

// Logger builds a zap logger from the log section.
func (l LogConfig) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if l.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level

	return zc.Build()
}
