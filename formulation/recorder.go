package formulation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arloliu/visco/dataset"
)

// Recorder appends formulations to a store and mirrors their measurements
// into the master dataset CSV.
type Recorder struct {
	store      Store
	masterPath string
	logger     *zap.Logger
}

// NewRecorder creates a Recorder. An empty masterPath disables mirroring.
func NewRecorder(store Store, masterPath string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Recorder{store: store, masterPath: masterPath, logger: logger}
}

// Store returns the underlying store.
func (r *Recorder) Store() Store { return r.store }

// ErrMirrorFailed marks a Record error raised after f was stored. Retrying
// must call Mirror, not Record, or the store gets a second copy.
var ErrMirrorFailed = errors.New("formulation stored but not mirrored")

// Record stores f and appends its two measurement rows to the master
// dataset. The store write happens first; a mirroring failure wraps
// ErrMirrorFailed and the stored record is kept.
func (r *Recorder) Record(ctx context.Context, f *Formulation) error {
	if err := r.store.Append(ctx, f); err != nil {
		return err
	}

	return r.Mirror(ctx, f)
}

// Mirror appends the measurement rows of an already stored f to the master
// dataset.
func (r *Recorder) Mirror(ctx context.Context, f *Formulation) error {
	if r.masterPath == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrMirrorFailed, err)
	}

	rows := f.Measurements()
	if err := dataset.AppendMaster(r.masterPath, rows); err != nil {
		r.logger.Error("failed to mirror formulation into master dataset",
			zap.String("path", r.masterPath),
			zap.String("key", f.Key()),
			zap.Error(err),
		)

		return fmt.Errorf("%w: %s: %w", ErrMirrorFailed, f.ID, err)
	}

	r.logger.Debug("mirrored formulation", zap.String("path", r.masterPath), zap.Int("rows", len(rows)))

	return nil
}
