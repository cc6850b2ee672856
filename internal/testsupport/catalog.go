package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"tagstation/internal/catalog"
)

// OpenCatalog opens a migrated catalog in a temp dir and applies seed.
// The store is closed when the test ends.
func OpenCatalog(t testing.TB, seed catalog.Seed) *catalog.Store {
	t.Helper()
	return OpenCatalogAt(t, filepath.Join(t.TempDir(), "catalog.db"), seed)
}

// OpenCatalogAt is OpenCatalog with an explicit database path.
func OpenCatalogAt(t testing.TB, path string, seed catalog.Seed) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.ApplySeed(context.Background(), seed); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	return store
}

// StandardSeed has bottles 10 to 12 untagged, bottle 13 tagged, recipe 3
// with two ingredients, and recipe 9 without any.
func StandardSeed() catalog.Seed {
	return catalog.Seed{
		Bottles: []catalog.SeedBottle{
			{ID: 10, Recipe: 3},
			{ID: 11, Recipe: 3},
			{ID: 12, Recipe: 9},
			{ID: 13, Recipe: 3, TaggedAt: "2024-05-01 08:30:00"},
		},
		Compositions: []catalog.SeedComposition{
			{Recipe: 3, Granulate: 7, Quantity: 12.5},
			{Recipe: 3, Granulate: 2, Quantity: 40},
		},
	}
}
