package feature

import (
	"math"
	"strings"
)

// Tag names a single model input column.
type Tag string

const (
	TotalPotency         Tag = "total_potency"
	TerpenePct           Tag = "terpene_pct"
	IsRaw                Tag = "is_raw"
	TheoreticalMax       Tag = "theoretical_max_terpene"
	TerpeneHeadroom      Tag = "terpene_headroom"
	TerpeneMaxRatio      Tag = "terpene_max_ratio"
	PotencyTerpeneRatio  Tag = "potency_terpene_ratio"
	InverseTemperature   Tag = "inverse_temp"
	TerpeneOneHotPrefix      = "terpene="
	CompositionTagPrefix     = "compound:"
)

// RatioFloor keeps the derived ratios finite near zero denominators.
const RatioFloor = 0.01

// PhysicalTolerance is the slack allowed above the theoretical maximum before
// a sample is considered physically impossible.
const PhysicalTolerance = 1.05

// Inputs are the raw facts about one sample, all as fractions.
type Inputs struct {
	Potency     float64
	TerpenePct  float64
	IsRaw       bool
	TerpeneName string
}

// Derived holds the engineered features computed from Inputs.
type Derived struct {
	TheoreticalMax      float64
	Headroom            float64
	MaxRatio            float64
	PotencyTerpeneRatio float64
}

// Derive computes the engineered features.
//
//	theoretical_max_terpene = 1 - potency
//	terpene_headroom        = theoretical_max - terpene_pct
//	terpene_max_ratio       = terpene_pct / max(0.01, theoretical_max)
//	potency_terpene_ratio   = potency / max(0.01, terpene_pct)
func Derive(potency, terpenePct float64) Derived {
	theoMax := TheoreticalMaxTerpene(potency)

	return Derived{
		TheoreticalMax:      theoMax,
		Headroom:            theoMax - terpenePct,
		MaxRatio:            terpenePct / math.Max(RatioFloor, theoMax),
		PotencyTerpeneRatio: potency / math.Max(RatioFloor, terpenePct),
	}
}

// TheoreticalMaxTerpene is the largest terpene fraction an oil of the given
// potency can physically hold.
func TheoreticalMaxTerpene(potency float64) float64 {
	return 1.0 - potency
}

// PhysicallyValid reports whether terpenePct stays within the tolerance above
// the theoretical maximum for the given potency.
func PhysicallyValid(potency, terpenePct float64) bool {
	return terpenePct <= PhysicalTolerance*TheoreticalMaxTerpene(potency)
}

// Fraction normalizes a potency or terpene value to [0, 1]. Values above 1
// are taken to be percentages.
func Fraction(v float64) float64 {
	if v > 1 {
		return v / 100
	}

	return v
}

// OneHotTag returns the one-hot column tag for a terpene identity.
func OneHotTag(terpene string) Tag {
	return Tag(TerpeneOneHotPrefix + terpene)
}

// CompositionTag returns the column tag for a terpene compound.
func CompositionTag(compound string) Tag {
	return Tag(CompositionTagPrefix + compound)
}

// IsOneHot reports whether tag is a terpene identity column.
func (t Tag) IsOneHot() bool {
	return strings.HasPrefix(string(t), TerpeneOneHotPrefix)
}

// Value returns the value of tag for the given inputs. Unknown tags, including
// one-hot columns for other terpenes, evaluate to MissingDefault.
func (in Inputs) Value(tag Tag) (float64, bool) {
	switch tag {
	case TotalPotency:
		return in.Potency, true
	case TerpenePct:
		return in.TerpenePct, true
	case IsRaw:
		if in.IsRaw {
			return 1, true
		}

		return 0, true
	case TheoreticalMax:
		return Derive(in.Potency, in.TerpenePct).TheoreticalMax, true
	case TerpeneHeadroom:
		return Derive(in.Potency, in.TerpenePct).Headroom, true
	case TerpeneMaxRatio:
		return Derive(in.Potency, in.TerpenePct).MaxRatio, true
	case PotencyTerpeneRatio:
		return Derive(in.Potency, in.TerpenePct).PotencyTerpeneRatio, true
	}

	if tag.IsOneHot() {
		if in.TerpeneName != "" && OneHotTag(in.TerpeneName) == tag {
			return 1, true
		}

		return 0, true
	}

	return MissingDefault, false
}
