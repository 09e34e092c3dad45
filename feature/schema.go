package feature

import (
	"fmt"
	"math"
	"slices"

	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/format"
)

// MissingDefault is the value used for a schema column the caller did not supply.
const MissingDefault = 0.0

// ResidualTags returns the residual feature order for a feature mode. is_raw
// is always last.
func ResidualTags(mode format.FeatureMode) []Tag {
	switch mode {
	case format.FeaturePotency:
		return []Tag{TotalPotency, IsRaw}
	case format.FeatureTerpene:
		return []Tag{TerpenePct, IsRaw}
	default:
		return []Tag{
			TotalPotency,
			TerpenePct,
			TheoreticalMax,
			TerpeneHeadroom,
			TerpeneMaxRatio,
			PotencyTerpeneRatio,
			IsRaw,
		}
	}
}

// ConsolidatedTags returns the consolidated feature order: the base and
// derived features followed by one one-hot column per terpene identity.
func ConsolidatedTags(terpenes []string) []Tag {
	tags := []Tag{
		TotalPotency,
		TerpenePct,
		IsRaw,
		TheoreticalMax,
		TerpeneHeadroom,
		TerpeneMaxRatio,
		PotencyTerpeneRatio,
	}
	for _, t := range terpenes {
		tags = append(tags, OneHotTag(t))
	}

	return tags
}

// Schema is the ordered list of columns a model was trained on, with the
// training-time column means used to impute missing values.
type Schema struct {
	Tags  []Tag     `json:"tags"`
	Means []float64 `json:"means,omitempty"`
}

// NewSchema creates a schema without means.
func NewSchema(tags []Tag) Schema {
	return Schema{Tags: slices.Clone(tags)}
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.Tags) }

// Index returns the column index of tag, or -1.
func (s Schema) Index(tag Tag) int {
	return slices.Index(s.Tags, tag)
}

// Mean returns the training mean of column i, or MissingDefault if unknown.
func (s Schema) Mean(i int) float64 {
	if i < len(s.Means) && !math.IsNaN(s.Means[i]) {
		return s.Means[i]
	}

	return MissingDefault
}

// Assemble builds the dense vector for in. Columns in does not provide take
// MissingDefault; NaN values take the training mean.
func (s Schema) Assemble(in Inputs, dst []float64) []float64 {
	dst = slices.Grow(dst[:0], len(s.Tags))
	for i, tag := range s.Tags {
		v, _ := in.Value(tag)
		if math.IsNaN(v) {
			v = s.Mean(i)
		}
		dst = append(dst, v)
	}

	return dst
}

// ShapeMismatch describes a vector that had to be padded or truncated to fit
// an estimator.
type ShapeMismatch struct {
	Got  int
	Want int
}

func (e *ShapeMismatch) Error() string {
	return fmt.Sprintf("feature vector has %d values, model expects %d", e.Got, e.Want)
}

func (e *ShapeMismatch) Unwrap() error { return errs.ErrFeatureShapeMismatch }

// Fit adapts x to an estimator width. Short vectors are zero-padded and long
// vectors truncated; either case returns a *ShapeMismatch describing it so the
// caller can surface a warning.
func Fit(x []float64, want int) ([]float64, error) {
	if len(x) == want {
		return x, nil
	}

	mismatch := &ShapeMismatch{Got: len(x), Want: want}
	if len(x) > want {
		return x[:want], mismatch
	}

	out := make([]float64, want)
	copy(out, x)

	return out, mismatch
}
