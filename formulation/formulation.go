// Package formulation records completed calibrations.
//
// A Formulation is append-only: stores add records and list them, and the
// only way to change history is an explicit Delete that rewrites the backing
// store without a key. Each record is also mirrored into the master training
// dataset as one row per calibration step, so calibrations feed the next
// training run.
package formulation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/arloliu/visco/dataset"
	"github.com/arloliu/visco/errs"
)

// MeasurementTemperature is the temperature calibration viscosities are
// measured at, °C.
const MeasurementTemperature = 25.0

// Method names how step 2 was computed.
type Method string

const (
	MethodModel Method = "model"
	MethodDecay Method = "decay"
)

// Formulation is one completed two-step calibration. Percentages and
// potencies are fractions; masses are grams; viscosities are cP.
type Formulation struct {
	ID                string    `json:"id" db:"id"`
	Media             string    `json:"media" db:"media"`
	MediaBrand        string    `json:"media_brand" db:"media_brand"`
	Terpene           string    `json:"terpene" db:"terpene"`
	TerpeneBrand      string    `json:"terpene_brand,omitempty" db:"terpene_brand"`
	TargetViscosity   float64   `json:"target_viscosity" db:"target_viscosity"`
	OilMass           float64   `json:"total_oil_mass" db:"oil_mass"`
	Step1Amount       float64   `json:"step1_amount" db:"step1_amount"`
	Step1Viscosity    float64   `json:"step1_viscosity" db:"step1_viscosity"`
	Step1TerpenePct   float64   `json:"step1_terpene_pct" db:"step1_terpene_pct"`
	Step2Amount       float64   `json:"step2_amount" db:"step2_amount"`
	Step2Viscosity    float64   `json:"step2_viscosity" db:"step2_viscosity"`
	ExpectedViscosity float64   `json:"expected_viscosity" db:"expected_viscosity"`
	TotalTerpeneMass  float64   `json:"total_terpene_mass" db:"total_terpene_mass"`
	TotalTerpenePct   float64   `json:"total_terpene_pct" db:"total_terpene_pct"`
	Step1Potency      float64   `json:"step1_potency" db:"step1_potency"`
	FinalPotency      float64   `json:"final_potency" db:"final_potency"`
	D9THC             *float64  `json:"d9_thc,omitempty" db:"d9_thc"`
	D8THC             *float64  `json:"d8_thc,omitempty" db:"d8_thc"`
	Method            Method    `json:"method" db:"method"`
	CreatedAt         time.Time `json:"timestamp" db:"created_at"`
}

// Key groups formulations of the same product: media_mediaBrand_terpene.
func (f *Formulation) Key() string {
	return Key(f.Media, f.MediaBrand, dataset.TerpeneIdentity(f.Terpene, f.TerpeneBrand))
}

// Key builds a formulation key.
func Key(media, mediaBrand, terpene string) string {
	return strings.Join([]string{media, mediaBrand, terpene}, "_")
}

// Validate checks that the record is complete and internally consistent.
func (f *Formulation) Validate() error {
	switch {
	case strings.TrimSpace(f.Media) == "":
		return fmt.Errorf("%w: media is required", errs.ErrInvalidInput)
	case !(f.OilMass > 0):
		return fmt.Errorf("%w: oil mass %g", errs.ErrInvalidInput, f.OilMass)
	case !(f.TargetViscosity > 0):
		return fmt.Errorf("%w: %g", errs.ErrInvalidTarget, f.TargetViscosity)
	case !(f.Step1Viscosity > 0) || !(f.Step2Viscosity > 0):
		return fmt.Errorf("%w: measured viscosities must be positive", errs.ErrInvalidInput)
	case f.Step1Amount < 0 || f.Step2Amount < 0 || math.IsNaN(f.Step1Amount) || math.IsNaN(f.Step2Amount):
		return fmt.Errorf("%w: terpene amounts must be non-negative", errs.ErrInvalidInput)
	}

	return nil
}

// Complete fills the derived totals from the step amounts and oil mass.
func (f *Formulation) Complete() {
	f.Step1TerpenePct = f.Step1Amount / f.OilMass
	f.TotalTerpeneMass = f.Step1Amount + f.Step2Amount
	f.TotalTerpenePct = f.TotalTerpeneMass / f.OilMass
	f.Step1Potency = dataset.ImputePotency(f.Step1TerpenePct)
	f.FinalPotency = dataset.ImputePotency(f.TotalTerpenePct)
}

// Measurements returns the two calibration points as master dataset rows.
func (f *Formulation) Measurements() []dataset.Record {
	common := dataset.Record{
		Media:        f.Media,
		MediaBrand:   f.MediaBrand,
		Terpene:      f.Terpene,
		TerpeneBrand: f.TerpeneBrand,
		Temperature:  dataset.Some(MeasurementTemperature),
		Timestamp:    f.CreatedAt,
	}
	if f.D9THC != nil {
		common.D9THC = dataset.Some(*f.D9THC)
	}
	if f.D8THC != nil {
		common.D8THC = dataset.Some(*f.D8THC)
	}

	step1 := common
	step1.TerpenePct = dataset.Some(f.Step1TerpenePct)
	step1.TotalPotency = dataset.Some(f.Step1Potency)
	step1.Viscosity = dataset.Some(f.Step1Viscosity)
	step1.Stage = "step1"

	step2 := common
	step2.TerpenePct = dataset.Some(f.TotalTerpenePct)
	step2.TotalPotency = dataset.Some(f.FinalPotency)
	step2.Viscosity = dataset.Some(f.Step2Viscosity)
	step2.Stage = "step2"

	return []dataset.Record{step1, step2}
}

// Store is an append-only formulation log.
type Store interface {
	// Append adds f. It assigns ID and CreatedAt when empty.
	Append(ctx context.Context, f *Formulation) error
	// List returns the records for key in insertion order, or all records
	// when key is empty.
	List(ctx context.Context, key string) ([]Formulation, error)
	// Delete removes every record for key and returns how many were removed.
	Delete(ctx context.Context, key string) (int, error)
}
