package profile

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLibrary_JSONRoundTrip(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)
	s.SetMeasured("D9", "Grape Ape", Profile{Compounds: map[string]float64{"beta-Myrcene": 0.6, "D-Limonene": 0.4}})

	path := filepath.Join(t.TempDir(), "profiles", "library.json")
	require.NoError(t, s.SaveJSON(path))

	lib, err := LoadLibrary(path)
	require.NoError(t, err)
	require.Equal(t, s.Library(), lib)

	loaded, err := NewStore(WithLibrary(lib))
	require.NoError(t, err)

	r := loaded.Resolve("D9", "Grape Ape", 0.1)
	require.Equal(t, SourceMeasured, r.Source)
	require.InDelta(t, 0.06, r.Compounds["beta-Myrcene"], 1e-12)

	g, ok := loaded.Default("Guava Gelato")
	require.True(t, ok)
	require.InDelta(t, 40.9, g.Other, 1e-9)
}

func TestLibrary_CustomDefaults(t *testing.T) {
	lib, err := ReadLibrary(strings.NewReader(`{
		"defaults": {"Lemon Haze": {"compounds": {"D-Limonene": 70, "beta-Pinene": 30}}}
	}`))
	require.NoError(t, err)

	s, err := NewStore(WithLibrary(lib))
	require.NoError(t, err)

	r := s.Resolve("D9", "Super Lemon Haze", 0.05)
	require.Equal(t, SourceSubstring, r.Source)
	require.Equal(t, "Lemon Haze", r.Name)
	require.InDelta(t, 0.035, r.Compounds["D-Limonene"], 1e-12)

	_, ok := s.Default("Guava Gelato")
	require.False(t, ok)
	_, ok = s.Default(Generic)
	require.True(t, ok)
}

func TestLibrary_Errors(t *testing.T) {
	_, err := ReadLibrary(strings.NewReader("{"))
	require.Error(t, err)

	_, err = NewStore(WithLibrary(Library{Measured: map[string]map[string]Profile{"D9": {"Empty": {}}}}))
	require.Error(t, err)

	_, err = LoadLibrary(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestStore_WriteMeasuredCSV(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)
	s.SetMeasured("D9", "Grape Ape", Profile{Compounds: map[string]float64{"Linalool": 0.25, "beta-Myrcene": 0.75}})
	s.SetMeasured("D8", "Tiger's Blood", Profile{Compounds: map[string]float64{"alpha-Pinene": 0.5}, Other: 0.5})

	var buf bytes.Buffer
	require.NoError(t, s.WriteMeasuredCSV(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, []string{
		"media,terpene,other,alpha-Pinene,beta-Myrcene,Linalool",
		"D8,Tiger's Blood,0.5,0.5,,",
		"D9,Grape Ape,0,,0.75,0.25",
	}, lines)
}
