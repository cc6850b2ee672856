package station

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tagstation/internal/catalog"
	"tagstation/internal/faults"
	"tagstation/internal/label"
)

// LabelCatalog is the lookup RenderLabel needs.
type LabelCatalog interface {
	RecipeAndTaggedAt(ctx context.Context, id catalog.BottleID) (catalog.RecipeID, *time.Time, bool, error)
}

// RenderedLabel describes a label written by RenderLabel.
type RenderedLabel struct {
	Bottle   catalog.BottleID
	Recipe   catalog.RecipeID
	TaggedAt *time.Time
	Path     string
}

// RenderLabel looks up bottle id and writes its QR label into dir. A bottle
// missing from the catalog is a store fault and encoder failures are encode
// faults. Both the label station and operator reprints go through here.
func RenderLabel(ctx context.Context, cat LabelCatalog, enc label.Encoder, dir string, id catalog.BottleID) (RenderedLabel, error) {
	recipe, taggedAt, ok, err := cat.RecipeAndTaggedAt(ctx, id)
	if err != nil {
		if !errors.Is(err, faults.ErrStore) {
			err = faults.Wrap(faults.ErrStore, component, "label", "look up bottle", err)
		}
		return RenderedLabel{}, err
	}
	if !ok {
		return RenderedLabel{}, faults.Wrap(faults.ErrStore, component, "label", fmt.Sprintf("bottle %d not in catalog", id), nil)
	}

	out := RenderedLabel{Bottle: id, Recipe: recipe, TaggedAt: taggedAt}
	dest := label.PathFor(dir, id)
	if err := enc.Encode(label.Payload(recipe, id, taggedAt), dest); err != nil {
		if !errors.Is(err, faults.ErrEncode) {
			err = faults.Wrap(faults.ErrEncode, component, "label", "encode label", err)
		}
		return out, err
	}
	out.Path = dest
	return out, nil
}
