package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/visco/dataset"
	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/feature"
	"github.com/arloliu/visco/format"
	"github.com/arloliu/visco/internal/options"
	"github.com/arloliu/visco/model"
	"github.com/arloliu/visco/profile"
	"github.com/arloliu/visco/regression"
)

// Stage is a step in training one media type.
type Stage uint8

const (
	StageStarted Stage = iota + 1
	StageTrained
	StageSkipped
)

func (s Stage) String() string {
	switch s {
	case StageStarted:
		return "started"
	case StageTrained:
		return "trained"
	case StageSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Progress reports a media type changing stage. Completed counts media types
// that reached StageTrained or StageSkipped so far.
type Progress struct {
	Media     string
	Stage     Stage
	Completed int
	Total     int
	Err       error
}

// MediaReport summarizes the fit for one media type.
type MediaReport struct {
	Media            string
	Rows             int
	Baseline         regression.Arrhenius
	ResidualRSquared float64
	ResidualCV       *regression.CVScore
	CompositionRows  int
	CompositionCV    *regression.CVScore
	Profiles         int
	ConsolidatedCV   *regression.CVScore
	Duration         time.Duration
}

// Result is the outcome of a training run.
type Result struct {
	Models  []model.Model
	Reports []MediaReport
	// Skipped lists media types that could not be trained.
	Skipped []*errs.DataQualityError
	// Clean reports rows rejected during cleaning, when training from records.
	Clean dataset.Report
}

// Trainer fits per-media models. A Trainer is immutable and safe for
// concurrent use.
type Trainer struct {
	cfg Config
	now func() time.Time
}

// New creates a Trainer.
func New(opts ...Option) (*Trainer, error) {
	cfg := defaultConfig()
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, err
	}

	return &Trainer{cfg: cfg, now: time.Now}, nil
}

// Config returns the trainer configuration.
func (t *Trainer) Config() Config {
	return t.cfg
}

// TrainRecords cleans raw records and trains on the result.
func (t *Trainer) TrainRecords(ctx context.Context, records []dataset.Record) (*Result, error) {
	samples, report, err := dataset.Clean(records, t.cfg.cleanOptions()...)
	if err != nil {
		return nil, err
	}

	res, err := t.Train(ctx, samples)
	if err != nil {
		return nil, err
	}
	res.Clean = report

	return res, nil
}

// Train fits models for every media type in samples.
//
// Media types are trained concurrently, bounded by Config.Concurrency. The
// only errors returned are context cancellation and invalid configuration;
// per-media failures land in Result.Skipped.
func (t *Trainer) Train(ctx context.Context, samples []dataset.Sample) (*Result, error) {
	return t.run(ctx, dataset.GroupByMedia(samples), t.cfg.Progress)
}

func (t *Trainer) run(ctx context.Context, groups []dataset.Group, progress func(Progress)) (*Result, error) {
	type outcome struct {
		models  []model.Model
		report  MediaReport
		skipped *errs.DataQualityError
	}

	total := len(groups)
	outcomes := make([]outcome, total)
	var completed atomic.Int64

	emit := func(p Progress) {
		if progress != nil {
			p.Total = total
			progress(p)
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(t.cfg.Concurrency)

	for i, g := range groups {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			emit(Progress{Media: g.Media, Stage: StageStarted, Completed: int(completed.Load())})

			models, report, err := t.trainMedia(ctx, g)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			done := int(completed.Add(1))
			if err != nil {
				var dq *errs.DataQualityError
				if !errors.As(err, &dq) {
					dq = errs.NewDataQualityError(g.Media, "fit failed", len(g.Samples), err)
				}
				outcomes[i] = outcome{skipped: dq}
				t.cfg.Logger.Warn("skipping media type",
					zap.String("media", g.Media),
					zap.String("reason", dq.Reason),
					zap.Int("rows", dq.Rows),
					zap.Error(dq.Err),
				)
				emit(Progress{Media: g.Media, Stage: StageSkipped, Completed: done, Err: dq})

				return nil
			}

			outcomes[i] = outcome{models: models, report: report}
			emit(Progress{Media: g.Media, Stage: StageTrained, Completed: done})

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, o := range outcomes {
		if o.skipped != nil {
			res.Skipped = append(res.Skipped, o.skipped)
			continue
		}
		res.Models = append(res.Models, o.models...)
		res.Reports = append(res.Reports, o.report)
	}

	return res, nil
}

func (t *Trainer) trainMedia(ctx context.Context, g dataset.Group) ([]model.Model, MediaReport, error) {
	cfg := &t.cfg
	start := time.Now()
	log := cfg.Logger.With(zap.String("media", g.Media))

	n := len(g.Samples)
	if n < cfg.MinRows {
		return nil, MediaReport{}, errs.NewDataQualityError(g.Media,
			fmt.Sprintf("insufficient rows (need %d)", cfg.MinRows), n, errs.ErrInsufficientData)
	}

	temps := make([]float64, n)
	visc := make([]float64, n)
	for i, s := range g.Samples {
		temps[i] = s.Temperature
		visc[i] = s.Viscosity
	}

	base, err := regression.FitArrhenius(temps, visc, cfg.BaselineAlpha)
	if err != nil {
		return nil, MediaReport{}, errs.NewDataQualityError(g.Media, "baseline fit failed", n, err)
	}

	residuals := make([]float64, n)
	for i := range n {
		residuals[i] = math.Log(visc[i]) - base.LnViscosity(temps[i])
	}

	meta := model.Metadata{
		Media:       g.Media,
		Regressor:   cfg.Regressor,
		FeatureMode: cfg.FeatureMode,
		Alpha:       cfg.Alpha,
		Rows:        n,
		TrainedAt:   t.now().UTC(),
	}

	tags := feature.ResidualTags(cfg.FeatureMode)
	X := design(tags, g.Samples)
	residual, residualCV, err := t.fitTerm(feature.NewSchema(tags), X, residuals, cfg.Folds, log)
	if err != nil {
		return nil, MediaReport{}, errs.NewDataQualityError(g.Media, "residual fit failed", n, err)
	}
	meta.CV = residualCV

	tl := &model.TwoLevel{
		Metadata: meta,
		Base:     base,
		Residual: residual,
		Profiles: measuredProfiles(g.Samples),
	}

	report := MediaReport{
		Media:            g.Media,
		Rows:             n,
		Baseline:         base,
		ResidualRSquared: residual.RSquared,
		ResidualCV:       residualCV,
		Profiles:         len(tl.Profiles),
	}

	if err := ctx.Err(); err != nil {
		return nil, MediaReport{}, err
	}

	comp, compCV, compRows, err := t.fitComposition(g.Samples, X, residuals, &residual, log)
	switch {
	case err != nil:
		log.Warn("composition term not trained", zap.Int("rows", compRows), zap.Error(err))
	case comp != nil:
		tl.Composition = comp
		tl.CompositionCV = compCV
		report.CompositionRows = compRows
		report.CompositionCV = compCV
	}

	models := []model.Model{tl}

	if cfg.Consolidated {
		cons, err := t.fitConsolidated(g.Samples, base, residuals, meta, log)
		if err != nil {
			log.Warn("consolidated variant not trained", zap.Error(err))
		} else {
			models = append(models, cons)
			report.ConsolidatedCV = cons.Metadata.CV
		}
	}

	report.Duration = time.Since(start)
	log.Info("trained media type",
		zap.Int("rows", n),
		zap.String("baseline", base.Formula()),
		zap.Float64("baseline_r2", base.RSquared),
		zap.Float64("residual_r2", residual.RSquared),
		zap.Stringer("residual_cv", cvStringer{residualCV}),
		zap.Int("composition_rows", report.CompositionRows),
		zap.Duration("duration", report.Duration),
	)

	return models, report, nil
}

// fitTerm fits one additive term and cross-validates it with up to k folds.
// X is imputed in place and its column means are recorded on the schema.
func (t *Trainer) fitTerm(schema feature.Schema, X [][]float64, y []float64, k int, log *zap.Logger) (model.Term, *regression.CVScore, error) {
	return t.fitTermWith(t.cfg.residualFitter, schema, X, y, k, log)
}

func (t *Trainer) fitTermWith(newFitter func() (regression.Fitter, error), schema feature.Schema, X [][]float64, y []float64, k int, log *zap.Logger) (model.Term, *regression.CVScore, error) {
	schema.Means = feature.ImputeColumns(X)

	fitter, err := newFitter()
	if err != nil {
		return model.Term{}, nil, err
	}

	m, err := regression.Fit(fitter, X, y)
	if err != nil {
		return model.Term{}, nil, err
	}

	var cv *regression.CVScore
	if k = min(k, len(y)); k >= 2 {
		score, err := regression.CrossValidate(fitter, X, y, k, t.cfg.Seed)
		if err != nil {
			log.Warn("cross-validation failed", zap.Int("folds", k), zap.Error(err))
		} else {
			cv = &score
		}
	}

	term, err := model.NewTerm(schema, m)
	if err != nil {
		return model.Term{}, nil, err
	}

	return term, cv, nil
}

// fitComposition fits the level-2 term on the rows with a compound breakdown.
// It returns a nil term when there are too few such rows.
func (t *Trainer) fitComposition(samples []dataset.Sample, X [][]float64, residuals []float64, residual *model.Term, log *zap.Logger) (*model.Term, *regression.CVScore, int, error) {
	var idx []int
	for i, s := range samples {
		if s.HasComposition() {
			idx = append(idx, i)
		}
	}
	if len(idx) < t.cfg.MinCompositionRows {
		return nil, nil, len(idx), nil
	}

	// Only compounds observed in at least one row become columns.
	var compounds []string
	for _, c := range dataset.KnownCompounds {
		for _, i := range idx {
			if _, ok := samples[i].Composition[c]; ok {
				compounds = append(compounds, c)
				break
			}
		}
	}
	if len(compounds) == 0 {
		return nil, nil, len(idx), errs.NewDataQualityError(samples[0].Media, "no known compounds", len(idx), errs.ErrEmptyColumn)
	}

	est := residual.Estimator()
	Xc := make([][]float64, len(idx))
	yc := make([]float64, len(idx))
	for j, i := range idx {
		row := make([]float64, len(compounds))
		for c, name := range compounds {
			row[c] = samples[i].Composition[name]
		}
		Xc[j] = row
		yc[j] = residuals[i] - est.Predict(X[i])
	}

	folds := 0
	if len(idx) >= MinCompositionCVRows {
		folds = min(t.cfg.Folds, len(idx)/2)
	}

	term, cv, err := t.fitTermWith(t.cfg.compositionFitter, model.CompositionSchema(compounds), Xc, yc, folds, log)
	if err != nil {
		return nil, nil, len(idx), err
	}

	return &term, cv, len(idx), nil
}

// fitConsolidated fits the residual over base features plus one-hot terpene
// identities for every non-raw terpene with at least MinOneHotRows rows.
func (t *Trainer) fitConsolidated(samples []dataset.Sample, base regression.Arrhenius, residuals []float64, meta model.Metadata, log *zap.Logger) (*model.Consolidated, error) {
	counts := make(map[string]int)
	for _, s := range samples {
		if !s.IsRaw {
			counts[s.Terpene]++
		}
	}

	var terpenes []string
	for name, c := range counts {
		if c >= MinOneHotRows {
			terpenes = append(terpenes, name)
		}
	}
	slices.Sort(terpenes)

	tags := feature.ConsolidatedTags(terpenes)
	X := design(tags, samples)
	term, cv, err := t.fitTerm(feature.NewSchema(tags), X, residuals, t.cfg.Folds, log)
	if err != nil {
		return nil, err
	}

	meta.FeatureMode = format.FeatureBoth
	meta.CV = cv

	return &model.Consolidated{
		Metadata: meta,
		Base:     base,
		Residual: term,
		Terpenes: terpenes,
	}, nil
}

// design builds the row-major feature matrix for tags.
func design(tags []feature.Tag, samples []dataset.Sample) [][]float64 {
	schema := feature.NewSchema(tags)
	X := make([][]float64, len(samples))
	for i, s := range samples {
		X[i] = schema.Assemble(inputs(s), make([]float64, 0, len(tags)))
	}

	return X
}

func inputs(s dataset.Sample) feature.Inputs {
	return feature.Inputs{
		Potency:     s.Potency,
		TerpenePct:  s.TerpenePct,
		IsRaw:       s.IsRaw,
		TerpeneName: s.Terpene,
	}
}

// measuredProfiles averages the compound breakdowns of each terpene.
func measuredProfiles(samples []dataset.Sample) map[string]profile.Profile {
	rows := make(map[string][]map[string]float64)
	for _, s := range samples {
		if s.HasComposition() && !s.IsRaw {
			rows[s.Terpene] = append(rows[s.Terpene], s.Composition)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	out := make(map[string]profile.Profile, len(rows))
	for name, r := range rows {
		if p, ok := profile.FromComposition(r); ok {
			out[name] = p
		}
	}

	return out
}

type cvStringer struct{ cv *regression.CVScore }

func (c cvStringer) String() string {
	if c.cv == nil {
		return "n/a"
	}

	return c.cv.String()
}
