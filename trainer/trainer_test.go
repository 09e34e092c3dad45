package trainer

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/visco/dataset"
	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/format"
	"github.com/arloliu/visco/internal/synth"
	"github.com/arloliu/visco/model"
)

func d9Records() []dataset.Record {
	return synth.Records(synth.Config{Media: "D9", Seed: 1})
}

func trainRecords(t *testing.T, records []dataset.Record, opts ...Option) *Result {
	t.Helper()

	tr, err := New(opts...)
	require.NoError(t, err)

	res, err := tr.TrainRecords(context.Background(), records)
	require.NoError(t, err)

	return res
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"folds", WithFolds(1)},
		{"alpha", WithAlpha(-1)},
		{"baseline alpha", WithBaselineAlpha(-0.1)},
		{"concurrency", WithConcurrency(0)},
		{"min rows", WithMinRows(1)},
		{"regressor", WithRegressor(format.RegressorKind(99))},
		{"feature mode", WithFeatureMode(format.FeatureMode(99))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			require.Error(t, err)
		})
	}
}

func TestTrain_RecoversLaw(t *testing.T) {
	res := trainRecords(t, d9Records(), WithFeatureMode(format.FeatureTerpene))

	require.Empty(t, res.Skipped)
	require.Len(t, res.Models, 1)
	require.Len(t, res.Reports, 1)
	require.Zero(t, res.Clean.RejectedRows())

	tl, ok := res.Models[0].(*model.TwoLevel)
	require.True(t, ok)
	require.Equal(t, "D9", tl.Meta().Media)
	require.Equal(t, format.FeatureTerpene, tl.Meta().FeatureMode)
	require.InDelta(t, 8000, tl.Base.B, 50)
	require.False(t, tl.HasComposition())

	require.NotNil(t, tl.Metadata.CV)
	require.Equal(t, DefaultFolds, tl.Metadata.CV.Folds)
	require.Greater(t, tl.Metadata.CV.Mean, 0.9)
	require.Greater(t, tl.Residual.RSquared, 0.95)

	require.Equal(t, 2, tl.Residual.Estimator().NumFeatures())
}

func TestTrain_SkipsSmallMedia(t *testing.T) {
	records := d9Records()
	for i := range 4 {
		records = append(records, dataset.Record{
			Media:        "Rosin",
			Terpene:      "House Blend",
			TerpenePct:   dataset.Some(5),
			TotalPotency: dataset.Some(80),
			Temperature:  dataset.Some(float64(20 + 5*i)),
			Viscosity:    dataset.Some(1e5),
		})
	}

	res := trainRecords(t, records)

	require.Len(t, res.Models, 1)
	require.Len(t, res.Skipped, 1)
	require.Equal(t, "Rosin", res.Skipped[0].Media)
	require.Equal(t, 4, res.Skipped[0].Rows)
	require.ErrorIs(t, res.Skipped[0], errs.ErrInsufficientData)
}

func TestTrain_Composition(t *testing.T) {
	records := synth.Records(synth.Config{
		Media:    "Live Resin",
		Terpenes: []string{"Grape Ape"},
		Seed:     2,
		Noise:    0.01,
		Composition: map[string]float64{
			"beta-Myrcene":  50,
			"Caryophyllene": 30,
			"D-Limonene":    20,
		},
	})

	res := trainRecords(t, records)
	require.Len(t, res.Models, 1)

	tl := res.Models[0].(*model.TwoLevel)
	require.True(t, tl.HasComposition())
	require.Equal(t, 3, tl.Composition.Schema.Len())
	require.NotNil(t, tl.CompositionCV)
	require.Positive(t, res.Reports[0].CompositionRows)

	p, ok := tl.Profiles["Grape Ape"]
	require.True(t, ok)
	require.InDelta(t, 0.5, p.Compounds["beta-Myrcene"], 1e-9)
	require.InDelta(t, 0.3, p.Compounds["Caryophyllene"], 1e-9)
}

func TestTrain_Consolidated(t *testing.T) {
	records := synth.Records(synth.Config{
		Media:    "D8",
		Terpenes: []string{"Tiger's Blood", "Grape Ape"},
		Seed:     3,
	})

	res := trainRecords(t, records, WithConsolidated(true), WithRegressor(format.RegressorForest))
	require.Len(t, res.Models, 2)

	var cons *model.Consolidated
	for _, m := range res.Models {
		if c, ok := m.(*model.Consolidated); ok {
			cons = c
		}
	}
	require.NotNil(t, cons)
	require.Equal(t, "D8@consolidated", cons.Key())
	require.Equal(t, []string{"Grape Ape", "Tiger's Blood"}, cons.Terpenes)
	require.Equal(t, 9, cons.Residual.Schema.Len())
	require.Equal(t, format.RegressorForest, cons.Residual.Estimator().Kind())
	require.NotNil(t, res.Reports[0].ConsolidatedCV)
}

func TestTrain_Progress(t *testing.T) {
	records := append(d9Records(), synth.Records(synth.Config{Media: "D8", Seed: 4})...)

	var mu sync.Mutex
	stages := make(map[string][]Stage)
	res := trainRecords(t, records, WithConcurrency(2), WithProgress(func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 2, p.Total)
		stages[p.Media] = append(stages[p.Media], p.Stage)
	}))

	require.Len(t, res.Models, 2)
	require.Equal(t, []Stage{StageStarted, StageTrained}, stages["D8"])
	require.Equal(t, []Stage{StageStarted, StageTrained}, stages["D9"])
}

func TestJob(t *testing.T) {
	samples, _, err := dataset.Clean(d9Records())
	require.NoError(t, err)

	tr, err := New(WithFeatureMode(format.FeaturePotency))
	require.NoError(t, err)

	job := tr.Start(context.Background(), samples)

	var events []Progress
	for p := range job.Progress() {
		events = append(events, p)
	}

	res, err := job.Wait()
	require.NoError(t, err)
	require.Len(t, res.Models, 1)
	require.Len(t, events, 2)
	require.Equal(t, StageTrained, events[1].Stage)
	require.Equal(t, 1, events[1].Completed)
}

func TestTrain_Canceled(t *testing.T) {
	samples, _, err := dataset.Clean(d9Records())
	require.NoError(t, err)

	tr, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = tr.Train(ctx, samples)
	require.ErrorIs(t, err, context.Canceled)
}
