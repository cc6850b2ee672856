package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"tagstation/internal/faults"
)

// Seed is catalog reference data loaded from a TOML file:
//
//	[[bottle]]
//	id = 10
//	recipe = 3
//
//	[[composition]]
//	recipe = 3
//	granulate = 7
//	quantity = 12.5
type Seed struct {
	Bottles      []SeedBottle      `toml:"bottle"`
	Compositions []SeedComposition `toml:"composition"`
}

// SeedBottle is one bottle entry of a seed file.
type SeedBottle struct {
	ID       BottleID `toml:"id"`
	Recipe   RecipeID `toml:"recipe"`
	TaggedAt string   `toml:"tagged_at"`
}

// SeedComposition is one composition row of a seed file.
type SeedComposition struct {
	Recipe    RecipeID    `toml:"recipe"`
	Granulate GranulateID `toml:"granulate"`
	Quantity  float64     `toml:"quantity"`
}

// SeedResult counts the rows written by ApplySeed.
type SeedResult struct {
	Bottles      int
	Compositions int
}

// LoadSeed parses and validates a seed file.
func LoadSeed(path string) (Seed, error) {
	var seed Seed
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("read seed file: %w", err)
	}
	if err := toml.Unmarshal(data, &seed); err != nil {
		return seed, faults.Wrap(faults.ErrConfiguration, component, "load_seed", "parse seed file", err)
	}
	if err := seed.Validate(); err != nil {
		return seed, err
	}
	return seed, nil
}

// Validate checks that bottle ids fit on a card and are unique.
func (s Seed) Validate() error {
	seen := make(map[BottleID]struct{}, len(s.Bottles))
	for _, b := range s.Bottles {
		if b.ID < 0 || b.ID > MaxCardBottleID {
			return faults.Wrap(faults.ErrConfiguration, component, "seed", fmt.Sprintf("bottle id %d outside 0-%d", b.ID, MaxCardBottleID), nil)
		}
		if _, dup := seen[b.ID]; dup {
			return faults.Wrap(faults.ErrConfiguration, component, "seed", fmt.Sprintf("duplicate bottle id %d", b.ID), nil)
		}
		seen[b.ID] = struct{}{}
		if b.TaggedAt != "" {
			if _, err := parseRequiredTimestamp(b.TaggedAt); err != nil {
				return faults.Wrap(faults.ErrConfiguration, component, "seed", fmt.Sprintf("bottle %d tagged_at", b.ID), err)
			}
		}
	}
	for _, c := range s.Compositions {
		if c.Quantity < 0 {
			return faults.Wrap(faults.ErrConfiguration, component, "seed", fmt.Sprintf("negative quantity for recipe %d granulate %d", c.Recipe, c.Granulate), nil)
		}
	}
	return nil
}

// ApplySeed upserts the seed's bottles and replaces the composition rows of
// every recipe the seed mentions, in one transaction. Existing tagging times
// are kept unless the seed sets one.
func (s *Store) ApplySeed(ctx context.Context, seed Seed) (SeedResult, error) {
	var result SeedResult
	if err := seed.Validate(); err != nil {
		return result, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, storeFault("seed", "begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, b := range seed.Bottles {
		var tagged sql.NullString
		if b.TaggedAt != "" {
			t, _ := parseRequiredTimestamp(b.TaggedAt)
			tagged = sql.NullString{String: formatTaggedAt(t), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO Flasche (Flaschen_ID, Rezept_ID, Tagged_Date) VALUES (?, ?, ?)
			 ON CONFLICT(Flaschen_ID) DO UPDATE SET
			   Rezept_ID = excluded.Rezept_ID,
			   Tagged_Date = COALESCE(excluded.Tagged_Date, Flasche.Tagged_Date)`,
			int64(b.ID), int64(b.Recipe), tagged,
		); err != nil {
			return result, storeFault("seed", "upsert "+fmtBottle(b.ID), err)
		}
		result.Bottles++
	}

	cleared := make(map[RecipeID]struct{})
	for _, c := range seed.Compositions {
		if _, done := cleared[c.Recipe]; !done {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM Rezept_besteht_aus_Granulat WHERE Rezept_ID = ?", int64(c.Recipe),
			); err != nil {
				return result, storeFault("seed", fmt.Sprintf("clear recipe %d", c.Recipe), err)
			}
			cleared[c.Recipe] = struct{}{}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO Rezept_besteht_aus_Granulat (Rezept_ID, Granulat_ID, Menge) VALUES (?, ?, ?)",
			int64(c.Recipe), int64(c.Granulate), c.Quantity,
		); err != nil {
			return result, storeFault("seed", fmt.Sprintf("insert composition for recipe %d", c.Recipe), err)
		}
		result.Compositions++
	}

	if err := tx.Commit(); err != nil {
		return SeedResult{}, storeFault("seed", "commit", err)
	}
	return result, nil
}
