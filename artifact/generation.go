package artifact

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/arloliu/visco/errs"
	"github.com/arloliu/visco/format"
	"github.com/arloliu/visco/model"
	"github.com/arloliu/visco/profile"
)

// Generation is an immutable, fully loaded set of models published together.
// Readers hold a *Generation for the duration of a request and never observe
// a partially written set.
type Generation struct {
	ID        string
	CreatedAt time.Time

	models   map[string]model.Model
	profiles *profile.Store
}

func newGeneration(id string, createdAt time.Time, models []model.Model, profileOpts []profile.StoreOption) (*Generation, error) {
	store, err := profile.NewStore(profileOpts...)
	if err != nil {
		return nil, err
	}

	g := &Generation{
		ID:        id,
		CreatedAt: createdAt,
		models:    make(map[string]model.Model, len(models)),
		profiles:  store,
	}
	for _, m := range models {
		g.models[m.Key()] = m
		if tl, ok := m.(*model.TwoLevel); ok {
			for terpene, p := range tl.Profiles {
				store.SetMeasured(tl.Metadata.Media, terpene, p)
			}
		}
	}

	return g, nil
}

// Empty reports whether the generation holds no models.
func (g *Generation) Empty() bool {
	return len(g.models) == 0
}

// Model returns the model for media and variant. Media matching falls back to
// a case-insensitive comparison.
func (g *Generation) Model(media string, variant format.ModelVariant) (model.Model, error) {
	if m, ok := g.models[model.Key(media, variant)]; ok {
		return m, nil
	}
	for _, m := range g.models {
		if m.Variant() == variant && strings.EqualFold(m.Meta().Media, media) {
			return m, nil
		}
	}

	return nil, &errs.ModelNotFoundError{Media: media}
}

// Lookup returns the model for media, preferring the given variant and
// falling back to the other one.
func (g *Generation) Lookup(media string, prefer format.ModelVariant) (model.Model, error) {
	if m, err := g.Model(media, prefer); err == nil {
		return m, nil
	}

	other := format.VariantConsolidated
	if prefer == format.VariantConsolidated {
		other = format.VariantTwoLevel
	}

	return g.Model(media, other)
}

// Models returns all models sorted by key.
func (g *Generation) Models() []model.Model {
	keys := slices.Sorted(maps.Keys(g.models))
	out := make([]model.Model, len(keys))
	for i, k := range keys {
		out[i] = g.models[k]
	}

	return out
}

// Media returns the distinct media types with a model, sorted.
func (g *Generation) Media() []string {
	set := make(map[string]struct{}, len(g.models))
	for _, m := range g.models {
		set[m.Meta().Media] = struct{}{}
	}

	return slices.Sorted(maps.Keys(set))
}

// Profiles returns the terpene profile store for this generation: the default
// library plus the measured profiles of its two-level models.
func (g *Generation) Profiles() *profile.Store {
	return g.profiles
}
