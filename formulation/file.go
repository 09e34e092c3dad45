package formulation

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileStore keeps formulations as JSON lines in a single file.
type FileStore struct {
	path   string
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens a store at path. The file is created on first append.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FileStore{path: path, logger: logger, now: time.Now}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Append(ctx context.Context, f *Formulation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if err := stamp(f, s.now); err != nil {
		return err
	}

	line, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal formulation: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open formulation log: %w", err)
	}
	if _, err := file.Write(line); err != nil {
		file.Close()
		return fmt.Errorf("append formulation: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	s.logger.Info("recorded formulation",
		zap.String("key", f.Key()),
		zap.String("id", f.ID),
		zap.Float64("total_terpene_pct", f.TotalTerpenePct),
	)

	return nil
}

func (s *FileStore) List(ctx context.Context, key string) ([]Formulation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	if key == "" {
		return all, nil
	}

	var out []Formulation
	for _, f := range all {
		if f.Key() == key {
			out = append(out, f)
		}
	}

	return out, nil
}

func (s *FileStore) Delete(ctx context.Context, key string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return 0, err
	}

	kept := all[:0]
	for _, f := range all {
		if f.Key() != key {
			kept = append(kept, f)
		}
	}
	removed := len(all) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	if err := s.rewrite(kept); err != nil {
		return 0, err
	}
	s.logger.Info("deleted formulations", zap.String("key", key), zap.Int("removed", removed))

	return removed, nil
}

func (s *FileStore) readAll() ([]Formulation, error) {
	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open formulation log: %w", err)
	}
	defer file.Close()

	var out []Formulation
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var f Formulation
		if err := json.Unmarshal(sc.Bytes(), &f); err != nil {
			s.logger.Warn("skipping unreadable formulation line", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		out = append(out, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read formulation log: %w", err)
	}

	return out, nil
}

func (s *FileStore) rewrite(records []Formulation) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".formulations-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), s.path)
}

// stamp assigns an ID and creation time to a new record.
func stamp(f *Formulation, now func() time.Time) error {
	if f.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate formulation id: %w", err)
		}
		f.ID = id.String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now().UTC()
	}

	return nil
}
