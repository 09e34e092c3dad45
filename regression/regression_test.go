package regression

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/format"
)

// linearData returns y = 2 + 3*x0 - x1 on a deterministic grid.
func linearData() ([][]float64, []float64) {
	var X [][]float64
	var y []float64
	for i := range 8 {
		for j := range 5 {
			x0 := float64(i) * 0.5
			x1 := float64(j*j) * 0.2
			X = append(X, []float64{x0, x1})
			y = append(y, 2+3*x0-x1)
		}
	}

	return X, y
}

func TestRidgeFitter_RecoversLinear(t *testing.T) {
	X, y := linearData()

	est, err := (&RidgeFitter{Alpha: 1e-9}).Fit(X, y)
	require.NoError(t, err)

	lin, ok := est.(*Linear)
	require.True(t, ok)
	require.InDelta(t, 2.0, lin.Intercept, 1e-6)
	require.InDelta(t, 3.0, lin.Weights[0], 1e-6)
	require.InDelta(t, -1.0, lin.Weights[1], 1e-6)
	require.Equal(t, format.RegressorRidge, est.Kind())
	require.Equal(t, 2, est.NumFeatures())
}

func TestRidgeFitter_ShrinksWithAlpha(t *testing.T) {
	X, y := linearData()

	weak, err := (&RidgeFitter{Alpha: 0.01}).Fit(X, y)
	require.NoError(t, err)
	strong, err := (&RidgeFitter{Alpha: 1000}).Fit(X, y)
	require.NoError(t, err)

	require.Less(t, math.Abs(strong.(*Linear).Weights[0]), math.Abs(weak.(*Linear).Weights[0]))
}

func TestRidgeFitter_ConstantColumn(t *testing.T) {
	X := [][]float64{{1, 5}, {2, 5}, {3, 5}, {4, 5}}
	y := []float64{2, 4, 6, 8}

	est, err := (&RidgeFitter{Alpha: 1e-9}).Fit(X, y)
	require.NoError(t, err)
	require.InDelta(t, 0.0, est.(*Linear).Weights[1], 1e-9)
	require.InDelta(t, 10.0, est.Predict([]float64{5, 5}), 1e-6)
}

func TestOLSFitter_RecoversLinear(t *testing.T) {
	X, y := linearData()

	est, err := (&OLSFitter{}).Fit(X, y)
	require.NoError(t, err)
	require.Equal(t, format.RegressorOLS, est.Kind())
	require.InDelta(t, 2+3*1.0-0.4, est.Predict([]float64{1.0, 0.4}), 1e-6)
}

func TestOLSFitter_TooFewRows(t *testing.T) {
	_, err := (&OLSFitter{}).Fit([][]float64{{1, 2}, {2, 1}}, []float64{1, 2})
	require.Error(t, err)
}

func TestForestFitter_StepFunction(t *testing.T) {
	var X [][]float64
	var y []float64
	for i := range 60 {
		x := float64(i) / 60
		X = append(X, []float64{x})
		if x < 0.5 {
			y = append(y, 0)
		} else {
			y = append(y, 1)
		}
	}

	fitter := &ForestFitter{Trees: 20, MaxDepth: 4, MinLeaf: 2, Seed: 42}
	est, err := fitter.Fit(X, y)
	require.NoError(t, err)
	require.InDelta(t, 0.0, est.Predict([]float64{0.1}), 0.1)
	require.InDelta(t, 1.0, est.Predict([]float64{0.9}), 0.1)

	again, err := fitter.Fit(X, y)
	require.NoError(t, err)
	require.Equal(t, est.Predict([]float64{0.47}), again.Predict([]float64{0.47}), "same seed must reproduce")
}

func TestForestFitter_DepthLimit(t *testing.T) {
	X, y := linearData()
	est, err := (&ForestFitter{Trees: 3, MaxDepth: 1, MinLeaf: 1, Seed: 7}).Fit(X, y)
	require.NoError(t, err)

	for _, tree := range est.(*Forest).Trees {
		require.LessOrEqual(t, len(tree.Nodes), 3)
	}
}

func TestNewFitter(t *testing.T) {
	f, err := NewFitter(format.RegressorForest, WithTrees(50), WithMaxDepth(2), WithMinLeaf(2))
	require.NoError(t, err)
	ff, ok := f.(*ForestFitter)
	require.True(t, ok)
	require.Equal(t, 50, ff.Trees)
	require.Equal(t, 2, ff.MaxDepth)
	require.Equal(t, uint64(DefaultSeed), ff.Seed)

	f, err = NewFitter(format.RegressorRidge)
	require.NoError(t, err)
	require.Equal(t, DefaultAlpha, f.(*RidgeFitter).Alpha)

	_, err = NewFitter(format.RegressorRidge, WithAlpha(-1))
	require.Error(t, err)

	_, err = NewFitter(format.RegressorKind(99))
	require.Error(t, err)
}

func TestKFold(t *testing.T) {
	folds := KFold(11, 5, 42)
	require.Len(t, folds, 5)
	require.Len(t, folds[0], 3)
	require.Len(t, folds[4], 2)

	seen := map[int]bool{}
	for _, f := range folds {
		for _, i := range f {
			require.False(t, seen[i])
			seen[i] = true
		}
	}
	require.Len(t, seen, 11)

	require.Equal(t, folds, KFold(11, 5, 42))
	require.Nil(t, KFold(3, 5, 42))
}

func TestCrossValidate(t *testing.T) {
	X, y := linearData()

	score, err := CrossValidate(&RidgeFitter{Alpha: 1e-6}, X, y, 5, 42)
	require.NoError(t, err)
	require.Len(t, score.Scores, 5)
	require.Greater(t, score.Mean, 0.999)
	require.GreaterOrEqual(t, score.Std, 0.0)

	_, err = CrossValidate(&RidgeFitter{}, X[:3], y[:3], 5, 42)
	require.ErrorIs(t, err, errs.ErrInsufficientData)
}

func TestFitArrhenius(t *testing.T) {
	var temps, visc []float64
	for _, c := range []float64{20, 25, 30, 40, 50, 60} {
		for range 5 {
			temps = append(temps, c)
			visc = append(visc, math.Exp(-11.4+8000*InverseTemperature(c)))
		}
	}

	base, err := FitArrhenius(temps, visc, DefaultBaselineAlpha)
	require.NoError(t, err)
	require.InEpsilon(t, 8000, base.B, 0.02)
	require.Greater(t, base.RSquared, 0.99)
	require.Equal(t, 30, base.Rows)

	// Viscosity falls with temperature.
	require.Greater(t, base.LnViscosity(20), base.LnViscosity(60))
}

func TestFitArrhenius_Errors(t *testing.T) {
	_, err := FitArrhenius([]float64{25}, []float64{1e6}, 0.1)
	require.ErrorIs(t, err, errs.ErrInsufficientData)

	_, err = FitArrhenius([]float64{25, 30}, []float64{1e6, 0}, 0.1)
	require.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = FitArrhenius([]float64{25, 30}, []float64{1e6}, 0.1)
	require.Error(t, err)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	X, y := linearData()
	forest, err := (&ForestFitter{Trees: 4, MaxDepth: 3, MinLeaf: 2, Seed: 1}).Fit(X, y)
	require.NoError(t, err)

	snap, err := NewSnapshot(forest)
	require.NoError(t, err)
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	restored, err := decoded.Estimator()
	require.NoError(t, err)
	require.Equal(t, forest.Predict(X[7]), restored.Predict(X[7]))

	_, err = Snapshot{Kind: format.RegressorForest}.Estimator()
	require.ErrorIs(t, err, errs.ErrInvalidArtifact)

	_, err = NewSnapshot(nil)
	require.ErrorIs(t, err, errs.ErrNotFitted)
}

func TestRSquared(t *testing.T) {
	require.Equal(t, 1.0, RSquared([]float64{1, 2, 3}, []float64{1, 2, 3}))
	require.Equal(t, 0.0, RSquared([]float64{2, 2, 2}, []float64{1, 2, 3}))
	require.Less(t, RSquared([]float64{1, 2, 3}, []float64{3, 2, 1}), 0.0)
	require.Equal(t, 0.0, RSquared(nil, nil))
	require.InDelta(t, 1.0, RMSE([]float64{1, 2}, []float64{2, 3}), 1e-12)
}

func BenchmarkForestPredict(b *testing.B) {
	X, y := linearData()
	est, _ := (&ForestFitter{Trees: DefaultTrees, MaxDepth: DefaultMaxDepth, MinLeaf: DefaultMinLeaf, Seed: DefaultSeed}).Fit(X, y)
	x := []float64{1.2, 0.8}

	for b.Loop() {
		est.Predict(x)
	}
}
