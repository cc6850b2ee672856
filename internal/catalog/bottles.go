package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RecipeFor returns the recipe mapped to a bottle.
func (s *Store) RecipeFor(ctx context.Context, id BottleID) (RecipeID, bool, error) {
	var recipe RecipeID
	err := s.db.QueryRowContext(ctx,
		"SELECT Rezept_ID FROM Flasche WHERE Flaschen_ID = ?", int64(id),
	).Scan(&recipe)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeFault("recipe_for", "query "+fmtBottle(id), err)
	}
	return recipe, true, nil
}

// RecipeAndTaggedAt returns the recipe and tagging time of a bottle. The
// time is nil while the bottle is untagged.
func (s *Store) RecipeAndTaggedAt(ctx context.Context, id BottleID) (RecipeID, *time.Time, bool, error) {
	var (
		recipe RecipeID
		raw    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT Rezept_ID, Tagged_Date FROM Flasche WHERE Flaschen_ID = ?", int64(id),
	).Scan(&recipe, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, storeFault("recipe_and_tagged_at", "query "+fmtBottle(id), err)
	}
	taggedAt, err := parseTaggedAt(raw)
	if err != nil {
		return 0, nil, false, storeFault("recipe_and_tagged_at", "decode tagged date of "+fmtBottle(id), err)
	}
	return recipe, taggedAt, true, nil
}

// CompositionFor returns the ingredient rows of a recipe in insertion order.
// A recipe without rows yields an empty slice.
func (s *Store) CompositionFor(ctx context.Context, recipe RecipeID) ([]CompositionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT Granulat_ID, Menge FROM Rezept_besteht_aus_Granulat WHERE Rezept_ID = ? ORDER BY rowid",
		int64(recipe),
	)
	if err != nil {
		return nil, storeFault("composition_for", "query composition", err)
	}
	defer rows.Close()

	out := []CompositionRow{}
	for rows.Next() {
		var row CompositionRow
		if err := rows.Scan(&row.GranulateID, &row.Quantity); err != nil {
			return nil, storeFault("composition_for", "scan composition row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFault("composition_for", "iterate composition", err)
	}
	return out, nil
}

// FirstUntaggedBottle returns the lowest bottle id that has not been tagged.
func (s *Store) FirstUntaggedBottle(ctx context.Context) (BottleID, bool, error) {
	var id BottleID
	err := s.db.QueryRowContext(ctx,
		`SELECT Flaschen_ID FROM Flasche
		 WHERE Tagged_Date IS NULL OR Tagged_Date IN (0, '0', '')
		 ORDER BY Flaschen_ID ASC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeFault("first_untagged_bottle", "query untagged bottles", err)
	}
	return id, true, nil
}

// MarkTagged records the tagging time of a bottle. A missing bottle is a
// store fault.
func (s *Store) MarkTagged(ctx context.Context, id BottleID, at time.Time) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE Flasche SET Tagged_Date = ? WHERE Flaschen_ID = ?",
		formatTaggedAt(at), int64(id),
	)
	if err != nil {
		return storeFault("mark_tagged", "update "+fmtBottle(id), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeFault("mark_tagged", "read affected rows", err)
	}
	if affected == 0 {
		return storeFault("mark_tagged", fmtBottle(id)+" not found", nil)
	}
	return nil
}

// ListBottles returns every bottle ordered by id.
func (s *Store) ListBottles(ctx context.Context) ([]Bottle, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT Flaschen_ID, Rezept_ID, Tagged_Date FROM Flasche ORDER BY Flaschen_ID ASC",
	)
	if err != nil {
		return nil, storeFault("list_bottles", "query bottles", err)
	}
	defer rows.Close()

	var out []Bottle
	for rows.Next() {
		var (
			b   Bottle
			raw sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.RecipeID, &raw); err != nil {
			return nil, storeFault("list_bottles", "scan bottle", err)
		}
		if b.TaggedAt, err = parseTaggedAt(raw); err != nil {
			return nil, storeFault("list_bottles", "decode tagged date of "+fmtBottle(b.ID), err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFault("list_bottles", "iterate bottles", err)
	}
	return out, nil
}
