// Command visco trains viscosity models, predicts, solves for terpene doses
// and walks through two-step bench calibrations.
//
// Usage:
//
//	visco [-config visco.yaml] <command> [flags]
//
// Commands:
//
//	train         train on the master dataset and publish a generation
//	predict       predict viscosity for one formulation
//	solve         find the terpene fraction for a target viscosity
//	calibrate     run an interactive two-step calibration
//	generations   list or activate model generations
//	formulations  list or delete recorded formulations
//	profiles      export the current terpene profile library
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"go.uber.org/zap"

	"github.com/arloliu/visco"
	"github.com/arloliu/visco/config"
	"github.com/arloliu/visco/formulation"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, app *app, args []string) error
}

var commands = []command{
	{"train", "train on the master dataset and publish a generation", runTrain},
	{"predict", "predict viscosity for one formulation", runPredict},
	{"solve", "find the terpene fraction for a target viscosity", runSolve},
	{"calibrate", "run an interactive two-step calibration", runCalibrate},
	{"generations", "list or activate model generations", runGenerations},
	{"formulations", "list or delete recorded formulations", runFormulations},
	{"profiles", "export the current terpene profile library", runProfiles},
}

type app struct {
	cfg    config.Config
	logger *zap.Logger
	engine *visco.Engine
	store  formulation.Store
	closer io.Closer
	stdin  io.Reader
	stdout io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("visco", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: visco [-config file] <command> [flags]\n\nCommands:\n")
		for _, c := range commands {
			fmt.Fprintf(fs.Output(), "  %-13s %s\n", c.name, c.usage)
		}
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	name := fs.Arg(0)
	for _, c := range commands {
		if c.name != name {
			continue
		}

		a, err := newApp(ctx, *configPath, stdin, stdout)
		if err != nil {
			return err
		}
		defer a.close()

		return c.run(ctx, a, fs.Args()[1:])
	}

	fs.Usage()

	return fmt.Errorf("unknown command %q", name)
}

func newApp(ctx context.Context, configPath string, stdin io.Reader, stdout io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Log.Logger()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, stdin: stdin, stdout: stdout}

	switch cfg.Formulations.Store {
	case "postgres":
		pg, err := formulation.OpenPostgres(ctx, cfg.Formulations.DSN, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		a.store, a.closer = pg, pg
	default:
		a.store = formulation.NewFileStore(cfg.Formulations.Path, logger)
	}

	repoOpts, err := cfg.RepositoryOptions()
	if err != nil {
		return nil, err
	}
	trainerOpts, err := cfg.TrainerOptions()
	if err != nil {
		return nil, err
	}

	a.engine, err = visco.Open(cfg.ModelDir,
		visco.WithLogger(logger),
		visco.WithRepositoryOptions(repoOpts...),
		visco.WithTrainerOptions(trainerOpts...),
		visco.WithSolverOptions(cfg.SolverOptions()...),
		visco.WithFormulations(a.store, cfg.MasterCSV),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func (a *app) close() {
	if a.closer != nil {
		a.closer.Close()
	}
	_ = a.logger.Sync()
}

// optionalFloat is a float flag that records whether it was set.
type optionalFloat struct {
	v   float64
	set bool
}

func (f *optionalFloat) String() string {
	if !f.set {
		return ""
	}

	return strconv.FormatFloat(f.v, 'g', -1, 64)
}

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.v, f.set = v, true

	return nil
}

func (f *optionalFloat) ptr() *float64 {
	if !f.set {
		return nil
	}
	v := f.v

	return &v
}
