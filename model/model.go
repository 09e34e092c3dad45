// Package model defines the fitted viscosity models.
//
// A Model is one of two variants:
//
//   - *TwoLevel: an Arrhenius baseline, a residual term over potency/terpene
//     features and, when enough composition data exists, a composition term
//     over terpene compound fractions
//   - *Consolidated: an Arrhenius baseline and a single residual term whose
//     features include one-hot terpene identities
//
// Every term adds in log-viscosity space, so a prediction is
// exp(baseline + residual + composition). Models are immutable after
// training and safe for concurrent use.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/format"
	"github.com/arloliu/visco/profile"
	"github.com/arloliu/visco/regression"
)

// Model is the closed set of fitted model variants.
type Model interface {
	// Variant identifies the concrete type.
	Variant() format.ModelVariant
	// Meta returns training metadata.
	Meta() Metadata
	// Baseline returns the Arrhenius temperature term.
	Baseline() regression.Arrhenius
	// Key returns the repository key.
	Key() string

	sealed()
}

// Metadata describes how a model was trained.
type Metadata struct {
	Media       string               `json:"media"`
	Regressor   format.RegressorKind `json:"regressor"`
	FeatureMode format.FeatureMode   `json:"feature_mode"`
	Alpha       float64              `json:"alpha"`
	Rows        int                  `json:"rows"`
	CV          *regression.CVScore  `json:"cv,omitempty"`
	TrainedAt   time.Time            `json:"trained_at"`
}

// Validate checks the fields an artifact needs to be decoded again.
func (m Metadata) Validate() error {
	switch {
	case strings.TrimSpace(m.Media) == "":
		return fmt.Errorf("%w: model media is empty", errs.ErrInvalidArtifact)
	case !m.Regressor.Valid():
		return fmt.Errorf("%w: %s model has unknown regressor kind %d", errs.ErrInvalidArtifact, m.Media, m.Regressor)
	case !m.FeatureMode.Valid():
		return fmt.Errorf("%w: %s model has unknown feature mode %d", errs.ErrInvalidArtifact, m.Media, m.FeatureMode)
	}

	return nil
}

// TwoLevel is the per-media model: baseline + residual (+ composition).
type TwoLevel struct {
	Metadata      Metadata                   `json:"metadata"`
	Base          regression.Arrhenius       `json:"baseline"`
	Residual      Term                       `json:"residual"`
	Composition   *Term                      `json:"composition,omitempty"`
	CompositionCV *regression.CVScore        `json:"composition_cv,omitempty"`
	Profiles      map[string]profile.Profile `json:"profiles,omitempty"`
}

// Consolidated is the per-media model with terpene identity folded into the
// residual features.
type Consolidated struct {
	Metadata Metadata             `json:"metadata"`
	Base     regression.Arrhenius `json:"baseline"`
	Residual Term                 `json:"residual"`
	Terpenes []string             `json:"terpenes"`
}

var (
	_ Model = (*TwoLevel)(nil)
	_ Model = (*Consolidated)(nil)
)

func (m *TwoLevel) Variant() format.ModelVariant { return format.VariantTwoLevel }

func (m *TwoLevel) Meta() Metadata { return m.Metadata }

func (m *TwoLevel) Baseline() regression.Arrhenius { return m.Base }

func (m *TwoLevel) Key() string { return Key(m.Metadata.Media, format.VariantTwoLevel) }

func (m *TwoLevel) sealed() {}

func (m *Consolidated) Variant() format.ModelVariant { return format.VariantConsolidated }

func (m *Consolidated) Meta() Metadata { return m.Metadata }

func (m *Consolidated) Baseline() regression.Arrhenius { return m.Base }

func (m *Consolidated) Key() string { return Key(m.Metadata.Media, format.VariantConsolidated) }

func (m *Consolidated) sealed() {}

// HasComposition reports whether the composition term was trained.
func (m *TwoLevel) HasComposition() bool {
	return m.Composition != nil
}

const consolidatedSuffix = "@consolidated"

// Key returns the repository key for a media and variant.
func Key(media string, variant format.ModelVariant) string {
	if variant == format.VariantConsolidated {
		return media + consolidatedSuffix
	}

	return media
}

// ParseKey splits a repository key into media and variant.
func ParseKey(key string) (string, format.ModelVariant) {
	if media, ok := strings.CutSuffix(key, consolidatedSuffix); ok {
		return media, format.VariantConsolidated
	}

	return key, format.VariantTwoLevel
}

type envelope struct {
	Variant      format.ModelVariant `json:"variant"`
	TwoLevel     *TwoLevel           `json:"two_level,omitempty"`
	Consolidated *Consolidated       `json:"consolidated,omitempty"`
}

// Marshal encodes a model as JSON tagged with its variant.
// It refuses metadata that Unmarshal would reject.
func Marshal(m Model) ([]byte, error) {
	if err := m.Meta().Validate(); err != nil {
		return nil, err
	}

	env := envelope{Variant: m.Variant()}
	switch v := m.(type) {
	case *TwoLevel:
		env.TwoLevel = v
	case *Consolidated:
		env.Consolidated = v
	}

	return json.Marshal(env)
}

// Unmarshal decodes a model produced by Marshal and restores its estimators.
func Unmarshal(data []byte) (Model, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidArtifact, err)
	}

	switch env.Variant {
	case format.VariantTwoLevel:
		m := env.TwoLevel
		if m == nil {
			return nil, fmt.Errorf("%w: two-level payload missing", errs.ErrInvalidArtifact)
		}
		if err := m.Residual.bind(); err != nil {
			return nil, err
		}
		if m.Composition != nil {
			if err := m.Composition.bind(); err != nil {
				return nil, err
			}
		}

		return m, nil
	case format.VariantConsolidated:
		m := env.Consolidated
		if m == nil {
			return nil, fmt.Errorf("%w: consolidated payload missing", errs.ErrInvalidArtifact)
		}
		if err := m.Residual.bind(); err != nil {
			return nil, err
		}

		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown variant %d", errs.ErrInvalidArtifact, env.Variant)
	}
}
