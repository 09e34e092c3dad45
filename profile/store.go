package profile

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/arloliu/visco/internal/options"
)

// Source names where a resolved profile came from.
type Source string

const (
	SourceMeasured  Source = "measured"
	SourceDefault   Source = "default"
	SourceSubstring Source = "substring"
	SourceStrain    Source = "strain"
	SourceGeneric   Source = "generic"
)

// Resolved is a profile scaled to a sample's terpene fraction.
type Resolved struct {
	Name       string
	Source     Source
	Compounds  map[string]float64
	Confidence float64
}

// Store holds measured profiles per media and the default library.
//
// A Store is safe for concurrent use. Lookups never mutate stored profiles.
type Store struct {
	mu       sync.RWMutex
	measured map[string]map[string]Profile
	defaults map[string]Profile
	policy   OtherPolicy
}

// StoreOption is a functional option for Store.
type StoreOption = options.Option[*Store]

// WithOtherPolicy overrides the other-share policy.
func WithOtherPolicy(p OtherPolicy) StoreOption {
	return options.NoError(func(s *Store) { s.policy = p })
}

// WithDefaults replaces the default library. A Generic entry is required for
// the final fallback; the built-in Generic is kept if absent.
func WithDefaults(lib map[string]Profile) StoreOption {
	return options.NoError(func(s *Store) {
		generic := s.defaults[Generic]
		s.defaults = maps.Clone(lib)
		if _, ok := s.defaults[Generic]; !ok {
			s.defaults[Generic] = generic
		}
	})
}

// NewStore creates a store with the built-in default library.
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{
		measured: make(map[string]map[string]Profile),
		defaults: DefaultLibrary(),
		policy:   DefaultOtherPolicy(),
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	return s, nil
}

// SetMeasured records a measured profile for a media/terpene pair.
func (s *Store) SetMeasured(media, terpene string, p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.measured[media]
	if !ok {
		m = make(map[string]Profile)
		s.measured[media] = m
	}
	m[terpene] = p
}

// Measured returns a copy of the measured profiles for a media.
func (s *Store) Measured(media string) map[string]Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.measured[media])
}

// Default returns a built-in profile by exact name.
func (s *Store) Default(name string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.defaults[name]

	return p, ok
}

// Resolve returns the profile for a terpene scaled to terpenePct.
//
// Resolution order:
//  1. a measured profile for (media, terpene)
//  2. a default profile with the exact name
//  3. a default whose name is contained in the terpene name or vice versa,
//     case-insensitive, excluding Generic; ties go to the longest name
//  4. the Indica or Sativa default when the name mentions it
//  5. Generic
//
// Default blends with an other share are passed through the store's
// OtherPolicy; the returned confidence reflects it.
func (s *Store) Resolve(media, terpene string, terpenePct float64) Resolved {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.measured[media][terpene]; ok {
		return s.finish(terpene, SourceMeasured, p, terpenePct)
	}

	if p, ok := s.defaults[terpene]; ok {
		return s.finish(terpene, SourceDefault, p, terpenePct)
	}

	lower := strings.ToLower(terpene)
	if lower != "" {
		var best string
		for _, name := range slices.Sorted(maps.Keys(s.defaults)) {
			if name == Generic || name == Indica || name == Sativa {
				continue
			}
			ln := strings.ToLower(name)
			if (strings.Contains(lower, ln) || strings.Contains(ln, lower)) && len(name) > len(best) {
				best = name
			}
		}
		if best != "" {
			return s.finish(best, SourceSubstring, s.defaults[best], terpenePct)
		}

		for _, strain := range []string{Indica, Sativa} {
			if p, ok := s.defaults[strain]; ok && strings.Contains(lower, strings.ToLower(strain)) {
				return s.finish(strain, SourceStrain, p, terpenePct)
			}
		}
	}

	return s.finish(Generic, SourceGeneric, s.defaults[Generic], terpenePct)
}

func (s *Store) finish(name string, source Source, p Profile, terpenePct float64) Resolved {
	blend, confidence := s.policy.Apply(p, s.defaults[Generic])
	blend = blend.Normalized()

	return Resolved{
		Name:       name,
		Source:     source,
		Compounds:  blend.Scaled(terpenePct),
		Confidence: confidence,
	}
}
