package dataset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/visco/errs"
)

func rec(media, terpene string, terp, potency Float, temp, visc float64) Record {
	return Record{
		Media:        media,
		Terpene:      terpene,
		TerpenePct:   terp,
		TotalPotency: potency,
		Temperature:  Some(temp),
		Viscosity:    Some(visc),
	}
}

func TestClean_NormalizesPercentages(t *testing.T) {
	samples, report, err := Clean([]Record{
		rec("D9", "Grape Ape", Some(5), Some(80), 25, 5e5),
		rec("D9", "Grape Ape", Some(0.05), Some(0.80), 25, 5e5),
	})
	require.NoError(t, err)
	require.Equal(t, 2, report.Kept)

	for _, s := range samples {
		require.InDelta(t, 0.05, s.TerpenePct, 1e-12)
		require.InDelta(t, 0.80, s.Potency, 1e-12)
		require.False(t, s.IsRaw)
	}
}

func TestClean_Imputation(t *testing.T) {
	samples, _, err := Clean([]Record{
		rec("D9", "Grape Ape", Some(0.05), None, 25, 5e5),
		rec("D9", "Grape Ape", None, Some(0.9), 25, 5e5),
	})
	require.NoError(t, err)
	require.Len(t, samples, 2)

	require.Equal(t, 0.05, samples[0].TerpenePct)
	require.Equal(t, ImputePotency(0.05), samples[0].Potency)
	require.InDelta(t, 0.95, samples[0].Potency, 1e-12)

	require.Equal(t, 0.9, samples[1].Potency)
	require.Equal(t, ImputeTerpene(0.9), samples[1].TerpenePct)
	require.InDelta(t, 0.1, samples[1].TerpenePct, 1e-12)

	require.InDelta(t, 0.05, ImputeTerpene(ImputePotency(0.05)), 1e-15)
}

func TestClean_RawRows(t *testing.T) {
	samples, _, err := Clean([]Record{
		rec("D9", "", None, Some(0.92), 25, 2e7),
		rec("Rosin", "Rosin", None, None, 25, 1e7),
	})
	require.NoError(t, err)
	require.Len(t, samples, 2)

	require.True(t, samples[0].IsRaw)
	require.Equal(t, RawTerpene, samples[0].Terpene)
	require.Equal(t, 0.0, samples[0].TerpenePct)

	require.True(t, samples[1].IsRaw)
	require.Equal(t, 0.0, samples[1].TerpenePct)
	require.Equal(t, 1.0, samples[1].Potency)
}

func TestClean_PotencyFallback(t *testing.T) {
	r := rec("D8", "Tiger's Blood", Some(0.04), None, 30, 1e6)
	r.D9THC = Some(10)
	r.D8THC = Some(75)

	samples, _, err := Clean([]Record{r})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.InDelta(t, 0.85, samples[0].Potency, 1e-12)
}

func TestClean_Rejections(t *testing.T) {
	records := []Record{
		rec("D9", "Grape Ape", Some(0.10), Some(0.95), 25, 5e5), // 0.10 > 1.05*0.05
		rec("D9", "Grape Ape", Some(0.05), Some(0.80), 25, 0),
		{Media: "D9", Terpene: "Grape Ape", TerpenePct: Some(0.05), Viscosity: Some(1e6)},
		rec("", "Grape Ape", Some(0.05), Some(0.80), 25, 5e5),
		rec("D9", "Grape Ape", None, None, 25, 5e5),
		rec("D9", "Grape Ape", Some(0.05), Some(0.80), 25, 5e5),
	}

	samples, report, err := Clean(records)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, 5, report.RejectedRows())

	var physical *errs.DataQualityError
	for _, r := range report.Rejected {
		if r.Reason == "exceeds theoretical maximum" {
			physical = r
		}
	}
	require.NotNil(t, physical)
	require.ErrorIs(t, physical, errs.ErrPhysicallyInvalid)
	require.Equal(t, "D9", physical.Media)

	samples, _, err = Clean(records[:1], WithKeepInvalid(true))
	require.NoError(t, err)
	require.Len(t, samples, 1)
}

func TestClean_ClampsTerpeneToUnitRange(t *testing.T) {
	r := rec("D9", "Grape Ape", Some(150), Some(50), 25, 5e5)

	samples, report, err := Clean([]Record{r})
	require.NoError(t, err)
	require.Empty(t, samples)
	require.Equal(t, 1, report.RejectedRows())

	samples, _, err = Clean([]Record{r}, WithKeepInvalid(true))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, 1.0, samples[0].TerpenePct)
	require.Equal(t, 0.5, samples[0].Potency)
}

func TestClean_Composition(t *testing.T) {
	r := rec("D9", "Grape Ape", Some(5), Some(80), 25, 5e5)
	r.TerpeneBrand = "Acme"
	r.Composition = map[string]float64{"beta-myrcene": 1.5, "D-Limonene": 0.3, "Sabinene": 0.2}

	samples, _, err := Clean([]Record{r})
	require.NoError(t, err)
	require.Len(t, samples, 1)

	s := samples[0]
	require.Equal(t, "Grape Ape_Acme", s.Terpene)
	require.True(t, s.HasComposition())
	require.InDelta(t, 0.015, s.Composition["beta-Myrcene"], 1e-12)
	require.InDelta(t, 0.003, s.Composition["D-Limonene"], 1e-12)
	require.NotContains(t, s.Composition, "Sabinene")
}

func TestGroupByMedia(t *testing.T) {
	groups := GroupByMedia([]Sample{
		{Media: "D9"}, {Media: "D8"}, {Media: "D9"},
	})
	require.Len(t, groups, 2)
	require.Equal(t, "D8", groups[0].Media)
	require.Len(t, groups[1].Samples, 2)
	require.Equal(t, "D9 (2 samples)", groups[1].String())
}
