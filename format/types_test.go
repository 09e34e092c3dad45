package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressionType_RoundTrip(t *testing.T) {
	for _, c := range []CompressionType{CompressionNone, CompressionZstd, CompressionS2, CompressionLZ4} {
		parsed, err := ParseCompressionType(c.String())
		require.NoError(t, err)
		require.Equal(t, c, parsed)
	}

	_, err := ParseCompressionType("brotli")
	require.Error(t, err)
}

func TestRegressorKind_Aliases(t *testing.T) {
	tests := []struct {
		in   string
		want RegressorKind
	}{
		{"ridge", RegressorRidge},
		{"RF", RegressorForest},
		{"random_forest", RegressorForest},
		{"linear", RegressorOLS},
		{"", RegressorRidge},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRegressorKind(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFeatureMode_Text(t *testing.T) {
	var m FeatureMode
	require.NoError(t, m.UnmarshalText([]byte("potency")))
	require.Equal(t, FeaturePotency, m)

	b, err := FeatureTerpene.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "terpene", string(b))

	require.Error(t, m.UnmarshalText([]byte("density")))
}

func TestModelVariant_Text(t *testing.T) {
	var v ModelVariant
	require.NoError(t, v.UnmarshalText([]byte("consolidated")))
	require.Equal(t, VariantConsolidated, v)
	require.Equal(t, "two-level", VariantTwoLevel.String())
}

func TestMarshalText_RejectsUnknown(t *testing.T) {
	_, err := FeatureMode(0).MarshalText()
	require.Error(t, err)
	_, err = RegressorKind(0).MarshalText()
	require.Error(t, err)
	_, err = ModelVariant(9).MarshalText()
	require.Error(t, err)

	for _, m := range []FeatureMode{FeatureBoth, FeaturePotency, FeatureTerpene} {
		b, err := m.MarshalText()
		require.NoError(t, err)

		var parsed FeatureMode
		require.NoError(t, parsed.UnmarshalText(b))
		require.Equal(t, m, parsed)
	}
	for _, k := range []RegressorKind{RegressorRidge, RegressorOLS, RegressorForest} {
		b, err := k.MarshalText()
		require.NoError(t, err)

		var parsed RegressorKind
		require.NoError(t, parsed.UnmarshalText(b))
		require.Equal(t, k, parsed)
	}
}
