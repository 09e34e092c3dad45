package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/format"
	"github.com/arloliu/visco/internal/hash"
	"github.com/arloliu/visco/internal/options"
	"github.com/arloliu/visco/model"
	"github.com/arloliu/visco/profile"
)

const (
	currentFile    = "CURRENT"
	generationsDir = "generations"
	manifestFile   = "manifest.json"
	artifactExt    = ".vmod"
)

// DefaultRetention is how many generations a repository keeps on disk.
const DefaultRetention = 3

// Manifest lists the artifacts of a generation.
type Manifest struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Entries   []ManifestEntry `json:"entries"`
}

// ManifestEntry describes one artifact file.
type ManifestEntry struct {
	Key         string                 `json:"key"`
	File        string                 `json:"file"`
	Media       string                 `json:"media"`
	Variant     format.ModelVariant    `json:"variant"`
	Compression format.CompressionType `json:"compression"`
	Size        int64                  `json:"size"`
	Rows        int                    `json:"rows"`
	CVMean      *float64               `json:"cv_mean,omitempty"`
}

// Repository stores model generations on disk.
//
// Publishing writes a complete generation directory and then atomically
// replaces the CURRENT pointer, so concurrent readers either see the old
// generation or the new one. The loaded generation is held behind an atomic
// pointer; Current never blocks on a publish in progress.
type Repository struct {
	root        string
	compression format.CompressionType
	keep        int
	logger      *zap.Logger
	profileOpts []profile.StoreOption
	now         func() time.Time

	publishMu sync.Mutex
	current   atomic.Pointer[Generation]
}

// RepositoryOption is a functional option for Repository.
type RepositoryOption = options.Option[*Repository]

// WithCompression sets the payload codec for new artifacts.
func WithCompression(c format.CompressionType) RepositoryOption {
	return options.New(func(r *Repository) error {
		if _, err := format.ParseCompressionType(c.String()); err != nil {
			return err
		}
		r.compression = c

		return nil
	})
}

// WithRetention sets how many generations to keep after a publish,
// including the new one. Zero keeps all.
func WithRetention(keep int) RepositoryOption {
	return options.New(func(r *Repository) error {
		if keep < 0 {
			return fmt.Errorf("retention must be non-negative, got %d", keep)
		}
		r.keep = keep

		return nil
	})
}

// WithLogger sets the repository logger.
func WithLogger(logger *zap.Logger) RepositoryOption {
	return options.NoError(func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	})
}

// WithProfileOptions configures the profile store built for each generation.
func WithProfileOptions(opts ...profile.StoreOption) RepositoryOption {
	return options.NoError(func(r *Repository) {
		r.profileOpts = append(r.profileOpts, opts...)
	})
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RepositoryOption {
	return options.NoError(func(r *Repository) {
		if now != nil {
			r.now = now
		}
	})
}

// NewRepository opens (creating if needed) a repository rooted at dir and
// loads the current generation, if any.
func NewRepository(dir string, opts ...RepositoryOption) (*Repository, error) {
	r := &Repository{
		root:        dir,
		compression: format.CompressionZstd,
		keep:        DefaultRetention,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	if err := options.Apply(r, opts...); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(dir, generationsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}

	if _, err := r.Reload(); err != nil {
		return nil, err
	}

	return r, nil
}

// Root returns the repository directory.
func (r *Repository) Root() string { return r.root }

// Current returns the loaded generation. It is never nil; an empty repository
// yields an empty generation whose lookups fail with ErrModelNotFound.
func (r *Repository) Current() *Generation {
	return r.current.Load()
}

// Reload re-reads the CURRENT pointer and swaps in that generation.
func (r *Repository) Reload() (*Generation, error) {
	id, err := r.readCurrent()
	if err != nil {
		return nil, err
	}

	var g *Generation
	if id == "" {
		g, err = newGeneration("", time.Time{}, nil, r.profileOpts)
	} else {
		g, err = r.load(id)
	}
	if err != nil {
		return nil, err
	}

	r.current.Store(g)

	return g, nil
}

func (r *Repository) readCurrent() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.root, currentFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read current generation: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

func (r *Repository) load(id string) (*Generation, error) {
	dir := filepath.Join(r.root, generationsDir, id)

	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest for generation %s: %w", id, err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: manifest for generation %s: %v", errs.ErrInvalidArtifact, id, err)
	}

	models := make([]model.Model, 0, len(manifest.Entries))
	for _, e := range manifest.Entries {
		raw, err := os.ReadFile(filepath.Join(dir, e.File))
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", e.Key, err)
		}
		m, _, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode artifact %s: %w", e.Key, err)
		}
		models = append(models, m)
	}

	return newGeneration(manifest.ID, manifest.CreatedAt, models, r.profileOpts)
}

// Publish writes models as a new generation and makes it current.
//
// The generation is first written to a temporary directory, renamed into
// place, and only then is CURRENT replaced (write temp file, rename). A
// failure at any step leaves the previous generation current.
//
// Returns:
//   - *Generation: The newly current generation
//   - error: Encoding or filesystem error
func (r *Repository) Publish(models []model.Model) (*Generation, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: nothing to publish", errs.ErrInsufficientData)
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate generation id: %w", err)
	}
	now := r.now().UTC()

	genRoot := filepath.Join(r.root, generationsDir)
	staging, err := os.MkdirTemp(genRoot, ".staging-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	manifest := Manifest{ID: id.String(), CreatedAt: now}
	for _, m := range models {
		data, stats, err := Encode(m, r.compression, now)
		if err != nil {
			return nil, err
		}

		file := artifactFileName(m.Key())
		if err := writeFileSync(filepath.Join(staging, file), data); err != nil {
			return nil, err
		}

		meta := m.Meta()
		entry := ManifestEntry{
			Key:         m.Key(),
			File:        file,
			Media:       meta.Media,
			Variant:     m.Variant(),
			Compression: r.compression,
			Size:        int64(len(data)),
			Rows:        meta.Rows,
		}
		if meta.CV != nil {
			mean := meta.CV.Mean
			entry.CVMean = &mean
		}
		manifest.Entries = append(manifest.Entries, entry)

		r.logger.Debug("encoded model artifact",
			zap.String("key", m.Key()),
			zap.Int64("raw_bytes", stats.OriginalSize),
			zap.Int64("compressed_bytes", stats.CompressedSize),
			zap.Float64("space_savings_pct", stats.SpaceSavings()),
		)
	}

	mdata, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeFileSync(filepath.Join(staging, manifestFile), mdata); err != nil {
		return nil, err
	}

	final := filepath.Join(genRoot, manifest.ID)
	if err := os.Rename(staging, final); err != nil {
		return nil, fmt.Errorf("install generation: %w", err)
	}

	g, err := newGeneration(manifest.ID, now, models, r.profileOpts)
	if err != nil {
		return nil, err
	}

	if err := r.swapCurrent(manifest.ID); err != nil {
		return nil, err
	}
	r.current.Store(g)

	r.logger.Info("published model generation",
		zap.String("generation", manifest.ID),
		zap.Int("models", len(models)),
	)

	if r.keep > 0 {
		if err := r.prune(r.keep); err != nil {
			r.logger.Warn("failed to prune old generations", zap.Error(err))
		}
	}

	return g, nil
}

func (r *Repository) swapCurrent(id string) error {
	tmp, err := os.CreateTemp(r.root, ".current-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(id + "\n"); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), filepath.Join(r.root, currentFile))
}

// Generations lists published generation IDs, oldest first. UUIDv7 IDs sort
// by creation time.
func (r *Repository) Generations() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, generationsDir))
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			ids = append(ids, e.Name())
		}
	}
	slices.Sort(ids)

	return ids, nil
}

// Activate makes an existing generation current, for rollback.
func (r *Repository) Activate(id string) (*Generation, error) {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	g, err := r.load(id)
	if err != nil {
		return nil, err
	}
	if err := r.swapCurrent(id); err != nil {
		return nil, err
	}
	r.current.Store(g)

	return g, nil
}

func (r *Repository) prune(keep int) error {
	ids, err := r.Generations()
	if err != nil {
		return err
	}
	current := r.Current().ID

	var errList []error
	for len(ids) > keep {
		id := ids[0]
		ids = ids[1:]
		if id == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(r.root, generationsDir, id)); err != nil {
			errList = append(errList, err)
		}
	}

	return errors.Join(errList...)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// artifactFileName maps a model key to a filesystem-safe, collision-free name.
func artifactFileName(key string) string {
	safe := strings.Trim(unsafeFileChars.ReplaceAllString(key, "_"), "_")

	return fmt.Sprintf("%s-%08x%s", safe, uint32(hash.ID(key)), artifactExt) //nolint:gosec
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
