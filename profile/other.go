package profile

import "maps"

// OtherPolicy controls how the unassigned "other" share of a blend is
// distributed over named compounds.
type OtherPolicy struct {
	// ReplaceThreshold is the other share above which the blend is replaced
	// wholesale by the Generic profile.
	ReplaceThreshold float64
	// KnownShare is the part of other redistributed proportionally over the
	// compounds already present. The remainder goes to MinorPrior.
	KnownShare float64
	// MinorPrior weights the compounds that receive the remainder. Only
	// compounds absent from the blend receive a share.
	MinorPrior map[string]float64
}

// DefaultOtherPolicy replaces blends that are more than 80% other and
// otherwise sends 70% of other to known compounds and 30% to minor terpenes.
func DefaultOtherPolicy() OtherPolicy {
	return OtherPolicy{
		ReplaceThreshold: 0.80,
		KnownShare:       0.70,
		MinorPrior: map[string]float64{
			"beta-Pinene":    30,
			"alpha-Humulene": 25,
			"Terpinolene":    15,
			"Ocimene 1":      15,
			"Nerolidol 1":    15,
		},
	}
}

// Apply distributes p.Other and returns the resulting blend (Other == 0) with
// the confidence 1 - other share. A blend without other has confidence 1.
//
// generic is used when the other share exceeds ReplaceThreshold or the blend
// has no named compounds; it is rescaled to p's total so the replacement
// carries the same terpene mass.
func (o OtherPolicy) Apply(p Profile, generic Profile) (Profile, float64) {
	share := p.OtherShare()
	if p.Other <= 0 {
		return Profile{Compounds: maps.Clone(p.Compounds)}, 1.0
	}
	confidence := 1.0 - share

	total := p.Total()
	known := p.Known()
	if share > o.ReplaceThreshold || known <= 0 {
		g := generic.Normalized()
		out := Profile{Compounds: g.Scaled(total)}

		return out, confidence
	}

	out := Profile{Compounds: maps.Clone(p.Compounds)}
	toKnown := p.Other * o.KnownShare
	for k, v := range p.Compounds {
		out.Compounds[k] = v + toKnown*v/known
	}

	remainder := p.Other - toKnown
	var priorTotal float64
	for k, w := range o.MinorPrior {
		if _, present := p.Compounds[k]; !present {
			priorTotal += w
		}
	}
	if priorTotal <= 0 {
		// Every minor compound is already present: keep the mass on known compounds.
		for k, v := range p.Compounds {
			out.Compounds[k] += remainder * v / known
		}

		return out, confidence
	}
	for k, w := range o.MinorPrior {
		if _, present := p.Compounds[k]; !present {
			out.Compounds[k] = remainder * w / priorTotal
		}
	}

	return out, confidence
}
