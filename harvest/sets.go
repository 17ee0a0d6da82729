// Package harvest drives cursor based, one-page-per-request walks over
// the catalog, and resolves harvesting sets into catalog filter keys.
package harvest

import (
	"context"
	"sync"

	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/catalog"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/pmh"
)

// SetResolver resolves configured set filter values into concrete
// heading index keys, memoized for the life of the server instance.
// Concurrent first access may resolve the same value redundantly; the
// lookup is idempotent and cheap, so no lock is held around store I/O.
type SetResolver struct {
	store  catalog.Store
	sets   []pmh.Set
	bySpec map[string]pmh.Set
	cache  sync.Map // filter value -> resolved key
}

// NewSetResolver creates a resolver over the configured sets.
func NewSetResolver(store catalog.Store, sets []pmh.Set) *SetResolver {
	bySpec := make(map[string]pmh.Set, len(sets))
	for _, s := range sets {
		bySpec[s.Spec] = s
	}
	return &SetResolver{store: store, sets: sets, bySpec: bySpec}
}

// Sets returns the configured sets in configuration order.
func (r *SetResolver) Sets() []pmh.Set { return r.sets }

// Specs returns the legal set arguments, for the validator.
func (r *SetResolver) Specs() map[string]pmh.Set { return r.bySpec }

// Keys resolves all filter values of a set spec into heading keys.
func (r *SetResolver) Keys(ctx context.Context, spec string) ([]string, error) {
	set, ok := r.bySpec[spec]
	if !ok {
		// The validator screens set arguments; an unknown spec here
		// means a stale token after a config change.
		return nil, nil
	}
	keys := make([]string, 0, len(set.Filters))
	for _, value := range set.Filters {
		if cached, ok := r.cache.Load(value); ok {
			keys = append(keys, cached.(string))
			continue
		}
		key, err := r.store.ResolveHeadingKey(ctx, value)
		if err != nil {
			return nil, err
		}
		r.cache.Store(value, key)
		keys = append(keys, key)
	}
	return keys, nil
}
