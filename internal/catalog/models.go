package catalog

import "time"

// BottleID identifies a bottle. Tagged bottles carry it in one card byte.
type BottleID int64

// RecipeID identifies a recipe.
type RecipeID int64

// GranulateID identifies a granulate ingredient.
type GranulateID int64

// MaxCardBottleID is the largest bottle id a card block can carry.
const MaxCardBottleID BottleID = 255

// CompositionRow is one ingredient line of a recipe.
type CompositionRow struct {
	GranulateID GranulateID
	Quantity    float64
}

// Bottle is one row of the bottle table.
type Bottle struct {
	ID       BottleID
	RecipeID RecipeID
	TaggedAt *time.Time
}

// Tagged reports whether the bottle has been claimed by a tag-write station.
func (b Bottle) Tagged() bool {
	return b.TaggedAt != nil
}

// Run is one recorded station cycle.
type Run struct {
	ID         string
	Station    string
	Mode       string
	CardUID    string
	BottleID   *BottleID
	FinalState string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the cycle took.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
