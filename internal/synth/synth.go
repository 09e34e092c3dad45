// Package synth generates measurement rows that follow a known viscosity law.
// It is used by tests across the module.
package synth

import (
	"math"
	"math/rand/v2"

	"github.com/arloliu/visco/dataset"
	"github.com/arloliu/visco/regression"
)

// Law is ln(viscosity) = A + B/T_K + Terpene*terpenePct + Potency*potency.
type Law struct {
	A       float64
	B       float64
	Terpene float64
	Potency float64
}

// DefaultLaw is a D9-like oil: about 5e6 cP undiluted at 25 °C, dropping by
// roughly a factor of 10 per 5% terpene.
var DefaultLaw = Law{A: -11.4, B: 8000, Terpene: -46}

// Viscosity evaluates the law.
func (l Law) Viscosity(celsius, terpenePct, potency float64) float64 {
	return math.Exp(l.A + l.B*regression.InverseTemperature(celsius) + l.Terpene*terpenePct + l.Potency*potency)
}

var (
	Temperatures = []float64{20, 25, 30, 40, 50, 60}
	TerpenePcts  = []float64{0, 0.02, 0.04, 0.06, 0.08, 0.10, 0.12}
	Potencies    = []float64{0.75, 0.80, 0.85}
)

// Config controls Records.
type Config struct {
	Media    string
	Terpenes []string
	Law      Law
	// Noise is the standard deviation of multiplicative log-normal noise.
	Noise float64
	Seed  uint64
	// Composition attaches a fixed compound breakdown, in percent of the
	// sample, to every terpene-bearing row.
	Composition map[string]float64
}

// Records returns one row per (temperature, terpene fraction, potency,
// terpene name) that is physically possible, in percent units like a lab
// spreadsheet.
func Records(cfg Config) []dataset.Record {
	law := cfg.Law
	if law == (Law{}) {
		law = DefaultLaw
	}
	terpenes := cfg.Terpenes
	if len(terpenes) == 0 {
		terpenes = []string{"House Blend"}
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	var out []dataset.Record
	for _, name := range terpenes {
		for _, p := range Potencies {
			for _, tp := range TerpenePcts {
				if tp > 1-p-0.01 {
					continue
				}
				for _, c := range Temperatures {
					v := law.Viscosity(c, tp, p)
					if cfg.Noise > 0 {
						v *= math.Exp(rng.NormFloat64() * cfg.Noise)
					}

					rec := dataset.Record{
						Media:        cfg.Media,
						Terpene:      name,
						TerpenePct:   dataset.Some(tp * 100),
						TotalPotency: dataset.Some(p * 100),
						Temperature:  dataset.Some(c),
						Viscosity:    dataset.Some(v),
					}
					if tp == 0 {
						rec.Terpene = "Raw"
					} else if len(cfg.Composition) > 0 {
						rec.Composition = scale(cfg.Composition, tp*100)
					}
					out = append(out, rec)
				}
			}
		}
	}

	return out
}

// scale spreads terpenePercent over the composition shares.
func scale(shares map[string]float64, terpenePercent float64) map[string]float64 {
	var total float64
	for _, v := range shares {
		total += v
	}
	out := make(map[string]float64, len(shares))
	for k, v := range shares {
		out[k] = v / total * terpenePercent
	}

	return out
}
