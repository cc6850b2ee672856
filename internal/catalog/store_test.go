package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagstation/internal/catalog"
	"tagstation/internal/faults"
	"tagstation/internal/testsupport"
)

func TestOpen_AppliesMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")

	store, err := catalog.Open(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, store.Applied())

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)
	require.NoError(t, store.Close())

	reopened, err := catalog.Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Empty(t, reopened.Applied(), "second open must not reapply migrations")
}

func TestOpen_EmptyPathIsConfigurationFault(t *testing.T) {
	_, err := catalog.Open(context.Background(), " ")
	assert.ErrorIs(t, err, faults.ErrConfiguration)
}

// ---- lookups ---------------------------------------------------------------

func TestRecipeFor(t *testing.T) {
	store := testsupport.OpenCatalog(t, testsupport.StandardSeed())
	ctx := context.Background()

	recipe, ok, err := store.RecipeFor(ctx, 12)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, catalog.RecipeID(9), recipe)

	_, ok, err = store.RecipeFor(ctx, 200)
	require.NoError(t, err)
	assert.False(t, ok, "unknown bottle must report missing, not fail")
}

func TestRecipeAndTaggedAt(t *testing.T) {
	store := testsupport.OpenCatalog(t, testsupport.StandardSeed())
	ctx := context.Background()

	recipe, taggedAt, ok, err := store.RecipeAndTaggedAt(ctx, 13)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, catalog.RecipeID(3), recipe)
	require.NotNil(t, taggedAt)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC), *taggedAt)

	_, taggedAt, ok, err = store.RecipeAndTaggedAt(ctx, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, taggedAt, "untagged bottle has no tagging time")

	_, _, ok, err = store.RecipeAndTaggedAt(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompositionFor_KeepsInsertionOrder(t *testing.T) {
	store := testsupport.OpenCatalog(t, testsupport.StandardSeed())

	rows, err := store.CompositionFor(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []catalog.CompositionRow{
		{GranulateID: 7, Quantity: 12.5},
		{GranulateID: 2, Quantity: 40},
	}, rows)
}

func TestCompositionFor_EmptyRecipe(t *testing.T) {
	store := testsupport.OpenCatalog(t, testsupport.StandardSeed())

	rows, err := store.CompositionFor(context.Background(), 9)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// ---- claiming --------------------------------------------------------------

func TestFirstUntaggedBottle_LowestID(t *testing.T) {
	store := testsupport.OpenCatalog(t, catalog.Seed{Bottles: []catalog.SeedBottle{
		{ID: 12, Recipe: 1},
		{ID: 11, Recipe: 1},
		{ID: 10, Recipe: 1, TaggedAt: "2024-01-01T00:00:00Z"},
	}})

	id, ok, err := store.FirstUntaggedBottle(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, catalog.BottleID(11), id)
}

func TestFirstUntaggedBottle_NoneLeft(t *testing.T) {
	store := testsupport.OpenCatalog(t, catalog.Seed{Bottles: []catalog.SeedBottle{
		{ID: 10, Recipe: 1, TaggedAt: "2024-01-01T00:00:00Z"},
	}})

	_, ok, err := store.FirstUntaggedBottle(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkTagged_RemovesBottleFromUntagged(t *testing.T) {
	store := testsupport.OpenCatalog(t, testsupport.StandardSeed())
	ctx := context.Background()
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))

	require.NoError(t, store.MarkTagged(ctx, 10, at))

	_, taggedAt, _, err := store.RecipeAndTaggedAt(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, taggedAt)
	assert.True(t, taggedAt.Equal(at))
	assert.Equal(t, time.UTC, taggedAt.Location())

	id, ok, err := store.FirstUntaggedBottle(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, catalog.BottleID(11), id)
}

func TestMarkTagged_MissingBottleIsStoreFault(t *testing.T) {
	store := testsupport.OpenCatalog(t, testsupport.StandardSeed())

	err := store.MarkTagged(context.Background(), 77, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.ErrStore)
	assert.Equal(t, faults.KindStore, faults.KindOf(err))
}

func TestClosedStoreIsStoreFault(t *testing.T) {
	store := testsupport.OpenCatalog(t, testsupport.StandardSeed())
	require.NoError(t, store.Close())

	_, _, err := store.RecipeFor(context.Background(), 10)
	assert.ErrorIs(t, err, faults.ErrStore)
}

// ---- listing and seeding ---------------------------------------------------

func TestListBottles(t *testing.T) {
	store := testsupport.OpenCatalog(t, testsupport.StandardSeed())

	bottles, err := store.ListBottles(context.Background())
	require.NoError(t, err)
	require.Len(t, bottles, 4)
	assert.Equal(t, catalog.BottleID(10), bottles[0].ID)
	assert.False(t, bottles[0].Tagged())
	assert.True(t, bottles[3].Tagged())
}

func TestApplySeed_ReplacesCompositionAndKeepsTagging(t *testing.T) {
	store := testsupport.OpenCatalog(t, testsupport.StandardSeed())
	ctx := context.Background()

	result, err := store.ApplySeed(ctx, catalog.Seed{
		Bottles:      []catalog.SeedBottle{{ID: 13, Recipe: 4}},
		Compositions: []catalog.SeedComposition{{Recipe: 3, Granulate: 5, Quantity: 1.5}},
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.SeedResult{Bottles: 1, Compositions: 1}, result)

	recipe, taggedAt, _, err := store.RecipeAndTaggedAt(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, catalog.RecipeID(4), recipe)
	assert.NotNil(t, taggedAt, "reseeding must not clear a tagging time")

	rows, err := store.CompositionFor(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []catalog.CompositionRow{{GranulateID: 5, Quantity: 1.5}}, rows)
}

func TestApplySeed_RejectsIDsThatDoNotFitOnACard(t *testing.T) {
	store := testsupport.OpenCatalog(t, catalog.Seed{})

	_, err := store.ApplySeed(context.Background(), catalog.Seed{
		Bottles: []catalog.SeedBottle{{ID: 256, Recipe: 1}},
	})
	assert.ErrorIs(t, err, faults.ErrConfiguration)

	bottles, err := store.ListBottles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bottles)
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.toml")
	payload := `
[[bottle]]
id = 10
recipe = 3

[[bottle]]
id = 11
recipe = 3
tagged_at = "2024-05-01 08:30:00"

[[composition]]
recipe = 3
granulate = 7
quantity = 12.5
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	seed, err := catalog.LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Bottles, 2)
	assert.Equal(t, catalog.BottleID(11), seed.Bottles[1].ID)
	assert.Equal(t, "2024-05-01 08:30:00", seed.Bottles[1].TaggedAt)
	require.Len(t, seed.Compositions, 1)
	assert.Equal(t, 12.5, seed.Compositions[0].Quantity)
}

func TestLoadSeed_DuplicateBottle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.toml")
	payload := "[[bottle]]\nid = 1\nrecipe = 1\n[[bottle]]\nid = 1\nrecipe = 2\n"
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	_, err := catalog.LoadSeed(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate bottle id 1")
}

// ---- run history -----------------------------------------------------------

func TestRecordAndListRuns(t *testing.T) {
	store := testsupport.OpenCatalog(t, catalog.Seed{})
	ctx := context.Background()
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	bottle := catalog.BottleID(11)

	firstID, err := store.RecordRun(ctx, catalog.Run{
		Station: "tagger", Mode: "tag-write", CardUID: "de:ad:be:ef", BottleID: &bottle,
		FinalState: "Done", StartedAt: base, FinishedAt: base.Add(2 * time.Second),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, firstID)

	_, err = store.RecordRun(ctx, catalog.Run{
		Station: "tagger", Mode: "tag-write", FinalState: "Failed", Error: "reader gone",
		StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute),
	})
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "Failed", runs[0].FinalState, "most recent run first")
	assert.Equal(t, "reader gone", runs[0].Error)
	assert.Nil(t, runs[0].BottleID)

	assert.Equal(t, firstID, runs[1].ID)
	require.NotNil(t, runs[1].BottleID)
	assert.Equal(t, bottle, *runs[1].BottleID)
	assert.Equal(t, "de:ad:be:ef", runs[1].CardUID)
	assert.Equal(t, 2*time.Second, runs[1].Duration())

	limited, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordRun_RejectsMalformedID(t *testing.T) {
	store := testsupport.OpenCatalog(t, catalog.Seed{})

	_, err := store.RecordRun(context.Background(), catalog.Run{ID: "not-a-uuid", Station: "s", Mode: "m", FinalState: "Done"})
	assert.ErrorIs(t, err, faults.ErrStore)
}

// ---- claim lock ------------------------------------------------------------

func TestClaimLock_ExcludesSecondHolder(t *testing.T) {
	store := testsupport.OpenCatalog(t, catalog.Seed{})
	first := store.ClaimLock()
	second := store.ClaimLock()

	require.NoError(t, first.Acquire(context.Background()))

	ok, err := second.TryAcquire()
	require.NoError(t, err)
	assert.False(t, ok, "claim lock must be exclusive")

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, second.Acquire(ctx), context.DeadlineExceeded)

	require.NoError(t, first.Release())
	ok, err = second.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Release())
	require.NoError(t, second.Release(), "releasing twice is a no-op")
}
