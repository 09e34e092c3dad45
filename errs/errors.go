// Package errs defines the error taxonomy shared by every visco package.
//
// Hard failures are returned as errors. Sentinel values allow callers to
// branch with errors.Is, and the typed errors carry the media/terpene
// context that produced them. Warning-level conditions (non-convergence,
// physical constraint violations, feature shape mismatches) are reported
// through the same sentinels but attached to result values instead of
// being returned as the error of a call.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData indicates a media type had fewer usable rows than required.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrEmptyColumn indicates a feature column had no observed values.
	ErrEmptyColumn = errors.New("feature column has no observed values")
	// ErrPhysicallyInvalid indicates a sample whose terpene fraction exceeds 1-potency.
	ErrPhysicallyInvalid = errors.New("sample exceeds theoretical maximum terpene content")
	// ErrMissingValue indicates a required measurement (temperature, viscosity) is missing.
	ErrMissingValue = errors.New("required measurement is missing")

	// ErrModelNotFound indicates no artifact exists for the requested media/terpene.
	ErrModelNotFound = errors.New("model not found")
	// ErrNoGeneration indicates the repository has no published model generation.
	ErrNoGeneration = errors.New("no model generation published")

	// ErrInvalidTarget indicates a non-positive or non-finite target viscosity.
	ErrInvalidTarget = errors.New("target viscosity must be positive and finite")
	// ErrInvalidInput indicates a malformed prediction or calibration input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNonConvergence indicates the bounded minimizer did not converge (warning level).
	ErrNonConvergence = errors.New("optimization did not converge")
	// ErrPhysicalConstraint indicates a terpene fraction above 1-potency (warning level).
	ErrPhysicalConstraint = errors.New("terpene fraction exceeds theoretical maximum")
	// ErrFeatureShapeMismatch indicates a feature vector was zero-padded to fit a model (warning level).
	ErrFeatureShapeMismatch = errors.New("feature vector length does not match model")

	// ErrInvalidArtifact indicates a model artifact with a bad header or payload.
	ErrInvalidArtifact = errors.New("invalid model artifact")
	// ErrChecksumMismatch indicates a model artifact whose payload checksum does not match.
	ErrChecksumMismatch = errors.New("model artifact checksum mismatch")
	// ErrUnsupportedVersion indicates an artifact written by an unknown format version.
	ErrUnsupportedVersion = errors.New("unsupported model artifact version")

	// ErrInvalidState indicates a calibrator operation called out of order.
	ErrInvalidState = errors.New("invalid calibration state")
	// ErrNotFitted indicates an estimator used before it was fitted.
	ErrNotFitted = errors.New("estimator is not fitted")
)

// DataQualityError reports a recoverable data problem found while cleaning or
// training. The trainer collects these and skips the affected rows or media
// types instead of aborting the run.
type DataQualityError struct {
	Media  string
	Reason string
	Rows   int
	Err    error
}

func (e *DataQualityError) Error() string {
	if e.Media == "" {
		return fmt.Sprintf("data quality: %s (%d rows): %v", e.Reason, e.Rows, e.Err)
	}

	return fmt.Sprintf("data quality [%s]: %s (%d rows): %v", e.Media, e.Reason, e.Rows, e.Err)
}

func (e *DataQualityError) Unwrap() error { return e.Err }

// NewDataQualityError creates a DataQualityError wrapping the given sentinel.
func NewDataQualityError(media, reason string, rows int, err error) *DataQualityError {
	return &DataQualityError{Media: media, Reason: reason, Rows: rows, Err: err}
}

// ModelNotFoundError reports a missing artifact for a media type, and
// optionally a terpene identity for consolidated lookups.
type ModelNotFoundError struct {
	Media   string
	Terpene string
}

func (e *ModelNotFoundError) Error() string {
	if e.Terpene == "" {
		return fmt.Sprintf("model not found for media %q", e.Media)
	}

	return fmt.Sprintf("model not found for media %q, terpene %q", e.Media, e.Terpene)
}

func (e *ModelNotFoundError) Unwrap() error { return ErrModelNotFound }
