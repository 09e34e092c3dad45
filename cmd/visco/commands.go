package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/arloliu/visco/calibrate"
	"github.com/arloliu/visco/dataset"
	"github.com/arloliu/visco/predictor"
	"github.com/arloliu/visco/solver"
	"github.com/arloliu/visco/trainer"
)

func runTrain(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	data := fs.String("data", a.cfg.MasterCSV, "training CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}

	records, err := dataset.LoadCSV(*data)
	if err != nil {
		return err
	}

	res, gen, err := a.engine.Train(ctx, records)
	if res != nil {
		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MEDIA\tROWS\tB\tRESIDUAL CV\tCOMPOSITION ROWS")
		for _, r := range res.Reports {
			fmt.Fprintf(tw, "%s\t%d\t%.1f\t%s\t%d\n", r.Media, r.Rows, r.Baseline.B, cvString(r), r.CompositionRows)
		}
		tw.Flush()

		for _, s := range res.Skipped {
			fmt.Fprintf(a.stdout, "skipped %s: %s (%d rows)\n", s.Media, s.Reason, s.Rows)
		}
		if n := res.Clean.RejectedRows(); n > 0 {
			fmt.Fprintf(a.stdout, "rejected %d rows during cleaning\n", n)
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "published generation %s with %d models\n", gen.ID, len(gen.Models()))

	return nil
}

func cvString(r trainer.MediaReport) string {
	if r.ResidualCV == nil {
		return "-"
	}

	return r.ResidualCV.String()
}

type formulationFlags struct {
	media        string
	terpene      string
	terpeneBrand string
	temperature  float64
	potency      optionalFloat
}

func (f *formulationFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.media, "media", "", "media type, e.g. D9")
	fs.StringVar(&f.terpene, "terpene", "", "terpene blend name")
	fs.StringVar(&f.terpeneBrand, "terpene-brand", "", "terpene brand")
	fs.Float64Var(&f.temperature, "temp", solver.DefaultTemperature, "temperature, °C")
	fs.Var(&f.potency, "potency", "total potency, fraction or percent")
}

func runPredict(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	var ff formulationFlags
	ff.register(fs)
	terp := fs.Float64("terpene-pct", 0, "terpene content, fraction or percent")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pred, err := a.engine.Predict(predictor.Request{
		Media:        ff.media,
		TerpenePct:   *terp,
		TemperatureC: ff.temperature,
		Potency:      ff.potency.ptr(),
		TerpeneName:  ff.terpene,
		TerpeneBrand: ff.terpeneBrand,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "viscosity: %.0f cP\n", pred.Viscosity)
	fmt.Fprintf(a.stdout, "model: %s %s\n", pred.Media, pred.Variant)
	if pred.Profile != nil {
		fmt.Fprintf(a.stdout, "profile: %s (%s, confidence %.2f)\n", pred.Profile.Name, pred.Profile.Source, pred.Confidence)
	}
	printWarnings(a.stdout, pred.Warnings)

	return nil
}

func runSolve(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("solve", flag.ContinueOnError)
	var ff formulationFlags
	ff.register(fs)
	target := fs.Float64("target", 0, "target viscosity, cP")
	oilMass := fs.Float64("oil-mass", 0, "oil mass in grams, for dose suggestions")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := solver.Query{
		Media:        ff.media,
		Target:       *target,
		TemperatureC: ff.temperature,
		Potency:      ff.potency.ptr(),
		TerpeneName:  ff.terpene,
		TerpeneBrand: ff.terpeneBrand,
	}
	sol, err := a.engine.Solve(q)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "terpene: %.2f%%\n", sol.TerpenePct*100)
	fmt.Fprintf(a.stdout, "predicted viscosity: %.0f cP (error %.2f%%)\n", sol.Viscosity, sol.RelativeError*100)
	fmt.Fprintf(a.stdout, "converged: %t, physically valid: %t\n", sol.Converged, sol.PhysicallyValid)
	if *oilMass > 0 {
		_, upper := a.engine.Bounds()
		d := sol.Dose(*oilMass, upper)
		fmt.Fprintf(a.stdout, "exact dose: %.2f g, suggested start: %.2f g (%.2f%%)\n", d.ExactMass, d.StartMass, d.StartPct*100)
	}
	printWarnings(a.stdout, sol.Warnings)

	return nil
}

func runCalibrate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("calibrate", flag.ContinueOnError)
	var b calibrate.Batch
	var potency, d9, d8 optionalFloat
	fs.StringVar(&b.Media, "media", "", "media type, e.g. D9")
	fs.StringVar(&b.MediaBrand, "media-brand", "", "media brand")
	fs.StringVar(&b.Terpene, "terpene", "", "terpene blend name")
	fs.StringVar(&b.TerpeneBrand, "terpene-brand", "", "terpene brand")
	fs.Float64Var(&b.OilMass, "oil-mass", 0, "oil mass, grams")
	fs.Float64Var(&b.Target, "target", 0, "target viscosity, cP")
	fs.Var(&potency, "potency", "total potency, fraction or percent")
	fs.Var(&d9, "d9", "delta-9 THC, fraction or percent; used when -potency is unset")
	fs.Var(&d8, "d8", "delta-8 THC, fraction or percent; used when -potency is unset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	b.Potency = potency.ptr()
	b.D9THC = d9.ptr()
	b.D8THC = d8.ptr()

	c, err := a.engine.Calibrator()
	if err != nil {
		return err
	}

	step1, err := c.Begin(b)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Step 1: add %.2f g of terpenes (%.1f%%), mix and measure at 25 °C.\n",
		step1.Amount, step1.Fraction*100)

	in := bufio.NewScanner(a.stdin)
	v1, err := readViscosity(in, a.stdout, "Step 1 viscosity (cP): ")
	if err != nil {
		return err
	}
	step2, err := c.RecordStep1(v1)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Step 2: add %.2f g more (%.2f%% total, %s method). Expected viscosity %.0f cP.\n",
		step2.Amount, step2.TotalFraction*100, step2.Method, step2.ExpectedViscosity)

	v2, err := readViscosity(in, a.stdout, "Step 2 viscosity (cP): ")
	if err != nil {
		return err
	}
	f, err := c.RecordStep2(ctx, v2)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Recorded %s: %.2f g terpenes, %.2f%% of oil.\n", f.Key(), f.TotalTerpeneMass, f.TotalTerpenePct*100)

	return nil
}

func readViscosity(in *bufio.Scanner, out io.Writer, prompt string) (float64, error) {
	fmt.Fprint(out, prompt)
	if !in.Scan() {
		if err := in.Err(); err != nil {
			return 0, err
		}

		return 0, io.ErrUnexpectedEOF
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(in.Text()), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid viscosity: %w", err)
	}

	return v, nil
}

func runGenerations(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("generations", flag.ContinueOnError)
	activate := fs.String("activate", "", "generation ID to make current")
	if err := fs.Parse(args); err != nil {
		return err
	}

	repo := a.engine.Repository()
	if *activate != "" {
		gen, err := repo.Activate(*activate)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "activated %s (%s)\n", gen.ID, strings.Join(gen.Media(), ", "))

		return nil
	}

	ids, err := repo.Generations()
	if err != nil {
		return err
	}
	current := repo.Current().ID
	for _, id := range ids {
		mark := " "
		if id == current {
			mark = "*"
		}
		fmt.Fprintf(a.stdout, "%s %s\n", mark, id)
	}

	return nil
}

func runFormulations(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("formulations", flag.ContinueOnError)
	key := fs.String("key", "", "formulation key media_brand_terpene; empty lists all")
	del := fs.Bool("delete", false, "delete every formulation with -key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *del {
		if *key == "" {
			return errors.New("-delete requires -key")
		}
		n, err := a.store.Delete(ctx, *key)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "deleted %d formulations\n", n)

		return nil
	}

	list, err := a.store.List(ctx, *key)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tKEY\tTARGET\tTERPENE %\tFINAL\tMETHOD")
	for _, f := range list {
		fmt.Fprintf(tw, "%s\t%s\t%.0f\t%.2f\t%.0f\t%s\n",
			f.CreatedAt.Format("2006-01-02 15:04"), f.Key(), f.TargetViscosity, f.TotalTerpenePct*100, f.Step2Viscosity, f.Method)
	}

	return tw.Flush()
}

func printWarnings(w io.Writer, warnings []error) {
	for _, warn := range warnings {
		fmt.Fprintf(w, "warning: %v\n", warn)
	}
}

func runProfiles(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("profiles", flag.ContinueOnError)
	format := fs.String("format", "json", "json (full library) or csv (measured profiles)")
	out := fs.String("out", "", "write to file instead of stdout; json only")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store := a.engine.Generation().Profiles()
	switch *format {
	case "json":
		if *out != "" {
			if err := store.SaveJSON(*out); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "wrote %s\n", *out)

			return nil
		}

		return store.WriteJSON(a.stdout)
	case "csv":
		if *out != "" {
			return errors.New("-out supports json only")
		}

		return store.WriteMeasuredCSV(a.stdout)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}
