package dataset

import (
	"math"
	"strings"
	"time"
)

// Float is an optional measurement.
type Float struct {
	V     float64
	Valid bool
}

// Some returns a present value. NaN and ±Inf are treated as missing.
func Some(v float64) Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Float{}
	}

	return Float{V: v, Valid: true}
}

// None is a missing measurement.
var None = Float{}

// Or returns the value, or def when missing.
func (f Float) Or(def float64) float64 {
	if f.Valid {
		return f.V
	}

	return def
}

// Record is one raw measurement row. Percent and fraction forms are both
// accepted for TerpenePct, TotalPotency and Composition.
type Record struct {
	Media        string
	MediaBrand   string
	Terpene      string
	TerpeneBrand string
	TerpenePct   Float
	TotalPotency Float
	D9THC        Float
	D8THC        Float
	Temperature  Float
	Viscosity    Float
	Composition  map[string]float64
	Stage        string
	Timestamp    time.Time
}

// Sample is a cleaned measurement. All fractions are in [0, 1] and Terpene is
// the combined "name_brand" identity.
type Sample struct {
	Media       string
	Terpene     string
	TerpenePct  float64
	Potency     float64
	Temperature float64
	Viscosity   float64
	IsRaw       bool
	Composition map[string]float64
}

// HasComposition reports whether the sample carries a compound breakdown.
func (s Sample) HasComposition() bool {
	return len(s.Composition) > 0
}

// KnownCompounds are the terpene compounds the composition model is trained
// on, in column order.
var KnownCompounds = []string{
	"alpha-Pinene",
	"Camphene",
	"beta-Pinene",
	"beta-Myrcene",
	"3-Carene",
	"alpha-Terpinene",
	"p-Cymene",
	"D-Limonene",
	"Ocimene 1",
	"Ocimene 2",
	"gamma-Terpinene",
	"Terpinolene",
	"Linalool",
	"Isopulegol",
	"Geraniol",
	"Caryophyllene",
	"alpha-Humulene",
	"Nerolidol 1",
	"Nerolidol 2",
	"Guaiol",
	"alpha-Bisabolol",
}

var compoundIndex = func() map[string]string {
	m := make(map[string]string, len(KnownCompounds))
	for _, c := range KnownCompounds {
		m[strings.ToLower(c)] = c
	}

	return m
}()

// CanonicalCompound returns the canonical spelling of a known compound name.
func CanonicalCompound(name string) (string, bool) {
	c, ok := compoundIndex[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// TerpeneIdentity combines a terpene name and brand as "name_brand".
func TerpeneIdentity(name, brand string) string {
	name = strings.TrimSpace(name)
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return name
	}

	return name + "_" + brand
}
