package profile

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/arloliu/visco/dataset"
	"github.com/arloliu/visco/internal/options"
)

// Library is the serialized form of a Store.
type Library struct {
	Defaults map[string]Profile            `json:"defaults,omitempty"`
	Measured map[string]map[string]Profile `json:"measured,omitempty"`
}

// WithLibrary loads a library into the store. Non-empty defaults replace the
// built-in library as WithDefaults does; measured profiles are added.
func WithLibrary(lib Library) StoreOption {
	return options.New(func(s *Store) error {
		if len(lib.Defaults) > 0 {
			if err := options.Apply(s, WithDefaults(lib.Defaults)); err != nil {
				return err
			}
		}
		for media, byTerpene := range lib.Measured {
			for terpene, p := range byTerpene {
				if p.Total() <= 0 {
					return fmt.Errorf("measured profile %s/%s is empty", media, terpene)
				}
				s.SetMeasured(media, terpene, p)
			}
		}

		return nil
	})
}

// Library returns a copy of the store contents.
func (s *Store) Library() Library {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lib := Library{
		Defaults: make(map[string]Profile, len(s.defaults)),
		Measured: make(map[string]map[string]Profile, len(s.measured)),
	}
	for name, p := range s.defaults {
		lib.Defaults[name] = p.clone()
	}
	for media, byTerpene := range s.measured {
		m := make(map[string]Profile, len(byTerpene))
		for terpene, p := range byTerpene {
			m[terpene] = p.clone()
		}
		lib.Measured[media] = m
	}

	return lib
}

func (p Profile) clone() Profile {
	return Profile{Compounds: maps.Clone(p.Compounds), Other: p.Other}
}

// ReadLibrary decodes a JSON library.
func ReadLibrary(r io.Reader) (Library, error) {
	var lib Library
	if err := json.NewDecoder(r).Decode(&lib); err != nil {
		return Library{}, fmt.Errorf("decode profile library: %w", err)
	}

	return lib, nil
}

// LoadLibrary reads a JSON library file.
func LoadLibrary(path string) (Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return Library{}, err
	}
	defer f.Close()

	return ReadLibrary(f)
}

// WriteJSON encodes the store contents as an indented JSON library.
func (s *Store) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(s.Library())
}

// SaveJSON writes the store contents to path through a temp file and rename.
func (s *Store) SaveJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".profiles-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := s.WriteJSON(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// WriteMeasuredCSV writes one row per measured profile: media, terpene,
// other, then one column per compound. Known compounds come first in their
// canonical order; any others follow sorted.
func (s *Store) WriteMeasuredCSV(w io.Writer) error {
	lib := s.Library()

	seen := make(map[string]bool)
	for _, byTerpene := range lib.Measured {
		for _, p := range byTerpene {
			for name := range p.Compounds {
				seen[name] = true
			}
		}
	}

	var compounds []string
	for _, name := range dataset.KnownCompounds {
		if seen[name] {
			compounds = append(compounds, name)
			delete(seen, name)
		}
	}
	compounds = append(compounds, slices.Sorted(maps.Keys(seen))...)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"media", "terpene", "other"}, compounds...)); err != nil {
		return err
	}
	for _, media := range slices.Sorted(maps.Keys(lib.Measured)) {
		byTerpene := lib.Measured[media]
		for _, terpene := range slices.Sorted(maps.Keys(byTerpene)) {
			p := byTerpene[terpene]
			row := make([]string, 0, len(compounds)+3)
			row = append(row, media, terpene, strconv.FormatFloat(p.Other, 'g', -1, 64))
			for _, name := range compounds {
				v, ok := p.Compounds[name]
				if !ok {
					row = append(row, "")
					continue
				}
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()

	return cw.Error()
}
