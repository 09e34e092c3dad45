// Package profile stores terpene compound profiles and resolves the profile
// to use for a (media, terpene) pair.
//
// A Profile is a relative blend: compound shares of the terpene mass, plus an
// optional unassigned "other" share. Resolution scales the blend by the
// sample's terpene fraction so the result is expressed as a fraction of the
// whole sample, matching the composition columns the models are trained on.
package profile

import (
	"maps"
	"math"
	"slices"
)

// Profile is a terpene blend. Compound values and Other are shares of the
// blend and need not be normalized; Total returns their sum.
type Profile struct {
	Compounds map[string]float64 `json:"compounds"`
	Other     float64            `json:"other,omitempty"`
}

// Total returns the sum of all compound shares including Other.
func (p Profile) Total() float64 {
	t := p.Other
	for _, v := range p.Compounds {
		t += v
	}

	return t
}

// Known returns the sum of the named compound shares.
func (p Profile) Known() float64 {
	return p.Total() - p.Other
}

// OtherShare returns Other as a fraction of Total.
func (p Profile) OtherShare() float64 {
	total := p.Total()
	if total <= 0 {
		return 0
	}

	return p.Other / total
}

// Names returns the compound names in sorted order.
func (p Profile) Names() []string {
	return slices.Sorted(maps.Keys(p.Compounds))
}

// Normalized returns a copy whose shares sum to 1.
func (p Profile) Normalized() Profile {
	total := p.Total()
	out := Profile{Compounds: make(map[string]float64, len(p.Compounds))}
	if total <= 0 {
		return out
	}
	for k, v := range p.Compounds {
		out.Compounds[k] = v / total
	}
	out.Other = p.Other / total

	return out
}

// Scaled returns the compound values multiplied by factor. Other is dropped.
func (p Profile) Scaled(factor float64) map[string]float64 {
	out := make(map[string]float64, len(p.Compounds))
	for k, v := range p.Compounds {
		out[k] = v * factor
	}

	return out
}

// FromComposition builds a blend from one or more measured compositions by
// averaging each compound over the rows that report it.
func FromComposition(rows []map[string]float64) (Profile, bool) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, row := range rows {
		for k, v := range row {
			if math.IsNaN(v) {
				continue
			}
			sums[k] += v
			counts[k]++
		}
	}
	if len(sums) == 0 {
		return Profile{}, false
	}

	p := Profile{Compounds: make(map[string]float64, len(sums))}
	for k, s := range sums {
		p.Compounds[k] = s / float64(counts[k])
	}

	return p.Normalized(), true
}
