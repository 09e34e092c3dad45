package dataset

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/feature"
	"github.com/arloliu/visco/internal/options"
)

// CleanConfig controls row cleaning.
type CleanConfig struct {
	// KeepInvalid keeps physically impossible rows instead of rejecting them.
	KeepInvalid bool
	Logger      *zap.Logger
}

// CleanOption is a functional option for CleanConfig.
type CleanOption = options.Option[*CleanConfig]

// WithKeepInvalid keeps rows whose terpene fraction exceeds 1-potency.
func WithKeepInvalid(keep bool) CleanOption {
	return options.NoError(func(cfg *CleanConfig) { cfg.KeepInvalid = keep })
}

// WithCleanLogger sets the logger used to report rejected rows.
func WithCleanLogger(logger *zap.Logger) CleanOption {
	return options.NoError(func(cfg *CleanConfig) {
		if logger != nil {
			cfg.Logger = logger
		}
	})
}

// Report summarizes a Clean run. Rejections are grouped by media and reason.
type Report struct {
	Kept     int
	Rejected []*errs.DataQualityError
}

// RejectedRows returns the total number of rejected rows.
func (r Report) RejectedRows() int {
	n := 0
	for _, e := range r.Rejected {
		n += e.Rows
	}

	return n
}

type rejectKey struct {
	media  string
	reason string
}

type rejection struct {
	reason string
	err    error
}

// Clean converts raw records into samples.
//
// Per row it:
//   - requires a media, a temperature and a positive viscosity
//   - normalizes percentages to fractions
//   - falls back to d9_thc + d8_thc when total_potency is missing
//   - classifies raw oil and gives raw rows a terpene fraction of 0 when missing
//   - imputes potency as 1 - terpene and terpene as 1 - potency
//   - rejects rows above 1.05 x (1 - potency) unless KeepInvalid is set
//
// Returns the clean samples in input order and a report of rejected rows.
func Clean(records []Record, opts ...CleanOption) ([]Sample, Report, error) {
	cfg := CleanConfig{Logger: zap.NewNop()}
	if err := options.Apply(&cfg, opts...); err != nil {
		return nil, Report{}, err
	}

	samples := make([]Sample, 0, len(records))
	counts := make(map[rejectKey]int)
	causes := make(map[rejectKey]error)

	for _, rec := range records {
		s, rej := cleanRecord(rec, cfg.KeepInvalid)
		if rej != nil {
			key := rejectKey{media: strings.TrimSpace(rec.Media), reason: rej.reason}
			counts[key]++
			causes[key] = rej.err

			continue
		}
		samples = append(samples, s)
	}

	report := Report{Kept: len(samples)}
	for key, n := range counts {
		report.Rejected = append(report.Rejected, errs.NewDataQualityError(key.media, key.reason, n, causes[key]))
	}
	sort.Slice(report.Rejected, func(i, j int) bool {
		a, b := report.Rejected[i], report.Rejected[j]
		if a.Media != b.Media {
			return a.Media < b.Media
		}

		return a.Reason < b.Reason
	})

	for _, r := range report.Rejected {
		cfg.Logger.Warn("rejected rows",
			zap.String("media", r.Media),
			zap.String("reason", r.Reason),
			zap.Int("rows", r.Rows),
		)
	}

	return samples, report, nil
}

func cleanRecord(rec Record, keepInvalid bool) (Sample, *rejection) {
	media := strings.TrimSpace(rec.Media)
	if media == "" {
		return Sample{}, &rejection{"missing media", errs.ErrMissingValue}
	}
	if !rec.Temperature.Valid {
		return Sample{}, &rejection{"missing temperature", errs.ErrMissingValue}
	}
	if !rec.Viscosity.Valid {
		return Sample{}, &rejection{"missing viscosity", errs.ErrMissingValue}
	}
	if rec.Viscosity.V <= 0 {
		return Sample{}, &rejection{"non-positive viscosity", errs.ErrInvalidInput}
	}

	potency := normalizedPotency(rec)
	terpene := None
	if rec.TerpenePct.Valid {
		// over 100% is clamped; it then fails the physical check unless kept
		terpene = Some(min(feature.Fraction(rec.TerpenePct.V), 1))
	}

	raw := IsRaw(media, rec.Terpene)
	if raw && !terpene.Valid {
		terpene = Some(0)
	}

	switch {
	case potency.Valid && !terpene.Valid:
		terpene = Some(ImputeTerpene(potency.V))
	case terpene.Valid && !potency.Valid:
		potency = Some(ImputePotency(terpene.V))
	case !potency.Valid && !terpene.Valid:
		return Sample{}, &rejection{"missing potency and terpene", errs.ErrMissingValue}
	}

	if terpene.V < 0 || potency.V < 0 || potency.V > 1 {
		return Sample{}, &rejection{"fraction out of range", errs.ErrInvalidInput}
	}

	if !keepInvalid && !feature.PhysicallyValid(potency.V, terpene.V) {
		return Sample{}, &rejection{"exceeds theoretical maximum", errs.ErrPhysicallyInvalid}
	}

	name := TerpeneIdentity(rec.Terpene, rec.TerpeneBrand)
	if raw && strings.TrimSpace(rec.Terpene) == "" {
		name = RawTerpene
	}

	return Sample{
		Media:       media,
		Terpene:     name,
		TerpenePct:  terpene.V,
		Potency:     potency.V,
		Temperature: rec.Temperature.V,
		Viscosity:   rec.Viscosity.V,
		IsRaw:       raw,
		Composition: normalizedComposition(rec),
	}, nil
}

func normalizedPotency(rec Record) Float {
	if rec.TotalPotency.Valid {
		return Some(feature.Fraction(rec.TotalPotency.V))
	}
	if rec.D9THC.Valid || rec.D8THC.Valid {
		return Some(feature.Fraction(rec.D9THC.Or(0) + rec.D8THC.Or(0)))
	}

	return None
}

// normalizedComposition converts compound values to fractions of the sample.
// Compounds share the unit of the row's terpene_pct; a percent-form
// terpene_pct or any compound above 1 marks the row as percent.
func normalizedComposition(rec Record) map[string]float64 {
	if len(rec.Composition) == 0 {
		return nil
	}

	percent := rec.TerpenePct.Valid && rec.TerpenePct.V > 1
	for _, v := range rec.Composition {
		if v > 1 {
			percent = true
			break
		}
	}

	out := make(map[string]float64, len(rec.Composition))
	for name, v := range rec.Composition {
		canonical, ok := CanonicalCompound(name)
		if !ok {
			continue
		}
		if percent {
			v /= 100
		}
		out[canonical] = v
	}
	if len(out) == 0 {
		return nil
	}

	return out
}

// ImputePotency returns the potency implied by a terpene fraction.
func ImputePotency(terpenePct float64) float64 {
	return 1 - terpenePct
}

// ImputeTerpene returns the terpene fraction implied by a potency.
func ImputeTerpene(potency float64) float64 {
	return 1 - potency
}

// Group is the set of samples for one media type.
type Group struct {
	Media   string
	Samples []Sample
}

// GroupByMedia partitions samples by media, sorted by media name.
func GroupByMedia(samples []Sample) []Group {
	idx := make(map[string]int)
	var groups []Group
	for _, s := range samples {
		i, ok := idx[s.Media]
		if !ok {
			i = len(groups)
			idx[s.Media] = i
			groups = append(groups, Group{Media: s.Media})
		}
		groups[i].Samples = append(groups[i].Samples, s)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Media < groups[j].Media })

	return groups
}

// String implements fmt.Stringer for log output.
func (g Group) String() string {
	return fmt.Sprintf("%s (%d samples)", g.Media, len(g.Samples))
}
