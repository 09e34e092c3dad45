package format

import (
	"fmt"
	"strings"
)

type (
	CompressionType uint8
	RegressorKind   uint8
	FeatureMode     uint8
	ModelVariant    uint8
)

const (
	CompressionNone CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.

	RegressorRidge  RegressorKind = 0x1 // RegressorRidge represents L2-regularized linear regression.
	RegressorOLS    RegressorKind = 0x2 // RegressorOLS represents ordinary least squares.
	RegressorForest RegressorKind = 0x3 // RegressorForest represents a bagged regression tree ensemble.

	FeatureBoth    FeatureMode = 0x1 // FeatureBoth uses potency, terpene fraction and derived features.
	FeaturePotency FeatureMode = 0x2 // FeaturePotency uses total potency only.
	FeatureTerpene FeatureMode = 0x3 // FeatureTerpene uses terpene fraction only.

	VariantTwoLevel     ModelVariant = 0x1 // VariantTwoLevel is baseline + residual (+ composition) per media.
	VariantConsolidated ModelVariant = 0x2 // VariantConsolidated is baseline + one residual with terpene one-hots.
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// ParseCompressionType parses a case-insensitive compression name.
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression type: %q", s)
	}
}

func (k RegressorKind) String() string {
	switch k {
	case RegressorRidge:
		return "ridge"
	case RegressorOLS:
		return "ols"
	case RegressorForest:
		return "forest"
	default:
		return "unknown"
	}
}

// ParseRegressorKind parses a regressor name. "rf" and "random_forest" are
// accepted as aliases for forest, "linear" for ols.
func ParseRegressorKind(s string) (RegressorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ridge", "":
		return RegressorRidge, nil
	case "ols", "linear":
		return RegressorOLS, nil
	case "forest", "rf", "random_forest":
		return RegressorForest, nil
	default:
		return 0, fmt.Errorf("unknown regressor kind: %q", s)
	}
}

// Valid reports whether k is a known regressor kind.
func (k RegressorKind) Valid() bool { return k >= RegressorRidge && k <= RegressorForest }

func (k RegressorKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown regressor kind: %d", uint8(k))
	}

	return []byte(k.String()), nil
}

func (k *RegressorKind) UnmarshalText(b []byte) error {
	v, err := ParseRegressorKind(string(b))
	if err != nil {
		return err
	}
	*k = v

	return nil
}

func (m FeatureMode) String() string {
	switch m {
	case FeatureBoth:
		return "both"
	case FeaturePotency:
		return "potency"
	case FeatureTerpene:
		return "terpene"
	default:
		return "unknown"
	}
}

// ParseFeatureMode parses a feature mode name.
func ParseFeatureMode(s string) (FeatureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "both", "":
		return FeatureBoth, nil
	case "potency":
		return FeaturePotency, nil
	case "terpene", "terpenes":
		return FeatureTerpene, nil
	default:
		return 0, fmt.Errorf("unknown feature mode: %q", s)
	}
}

// Valid reports whether m is a known feature mode.
func (m FeatureMode) Valid() bool { return m >= FeatureBoth && m <= FeatureTerpene }

func (m FeatureMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("unknown feature mode: %d", uint8(m))
	}

	return []byte(m.String()), nil
}

func (m *FeatureMode) UnmarshalText(b []byte) error {
	v, err := ParseFeatureMode(string(b))
	if err != nil {
		return err
	}
	*m = v

	return nil
}

func (v ModelVariant) String() string {
	switch v {
	case VariantTwoLevel:
		return "two-level"
	case VariantConsolidated:
		return "consolidated"
	default:
		return "unknown"
	}
}

// ParseModelVariant parses a model variant name.
func ParseModelVariant(s string) (ModelVariant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "two-level", "twolevel", "two_level", "":
		return VariantTwoLevel, nil
	case "consolidated":
		return VariantConsolidated, nil
	default:
		return 0, fmt.Errorf("unknown model variant: %q", s)
	}
}

// Valid reports whether v is a known model variant.
func (v ModelVariant) Valid() bool { return v == VariantTwoLevel || v == VariantConsolidated }

func (v ModelVariant) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("unknown model variant: %d", uint8(v))
	}

	return []byte(v.String()), nil
}

func (v *ModelVariant) UnmarshalText(b []byte) error {
	p, err := ParseModelVariant(string(b))
	if err != nil {
		return err
	}
	*v = p

	return nil
}
