package harvest

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/catalog"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/pmh"
)

func TestSetResolverMemoizes(t *testing.T) {
	store := &catalog.MemStore{Headings: map[string]string{
		"genre:fennica": "K0017",
		"genre:viola":   "K0042",
	}}
	sets := []pmh.Set{
		{Spec: "fennica", Name: "Fennica", Filters: []string{"genre:fennica"}},
		{Spec: "music", Name: "Viola", Filters: []string{"genre:viola", "genre:fennica"}},
	}
	r := NewSetResolver(store, sets)
	ctx := context.Background()
	keys, err := r.Keys(ctx, "music")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"K0042", "K0017"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	// Repeated and overlapping resolutions hit the cache.
	for i := 0; i < 10; i++ {
		if _, err := r.Keys(ctx, "music"); err != nil {
			t.Fatal(err)
		}
		if _, err := r.Keys(ctx, "fennica"); err != nil {
			t.Fatal(err)
		}
	}
	if store.Resolutions != 2 {
		t.Errorf("store resolved %d values, want 2", store.Resolutions)
	}
}

func TestSetResolverUnknownHeading(t *testing.T) {
	store := &catalog.MemStore{Headings: map[string]string{}}
	r := NewSetResolver(store, []pmh.Set{{Spec: "x", Filters: []string{"nope"}}})
	if _, err := r.Keys(context.Background(), "x"); err == nil {
		t.Fatal("expected resolution error")
	}
}

func TestSetResolverStaleSpec(t *testing.T) {
	r := NewSetResolver(&catalog.MemStore{}, nil)
	keys, err := r.Keys(context.Background(), "gone")
	if err != nil || keys != nil {
		t.Errorf("stale spec: got %v, %v", keys, err)
	}
}
