package station

import (
	"fmt"
	"strings"

	"tagstation/internal/faults"
)

// Access selects what AccessCard does with a detected card.
type Access int

const (
	// ReadBottleID reads the bottle id from the card.
	ReadBottleID Access = iota
	// ClaimAndWriteBottleID claims the next untagged bottle and writes its id.
	ClaimAndWriteBottleID
)

func (a Access) String() string {
	switch a {
	case ReadBottleID:
		return "read"
	case ClaimAndWriteBottleID:
		return "claim-write"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

// Action selects what Reconcile does with the bottle id.
type Action int

const (
	// LookupComposition resolves the bottle's recipe and its ingredient rows.
	LookupComposition Action = iota
	// LookupAndEncodeLabel renders the bottle's QR label.
	LookupAndEncodeLabel
	// PersistTagClaim stores the tagging time of a claimed bottle.
	PersistTagClaim
)

func (a Action) String() string {
	switch a {
	case LookupComposition:
		return "composition"
	case LookupAndEncodeLabel:
		return "label"
	case PersistTagClaim:
		return "persist-claim"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Mode pairs an access direction with a reconcile action.
type Mode struct {
	Access Access
	Action Action
}

// Station presets.
var (
	TagWrite     = Mode{Access: ClaimAndWriteBottleID, Action: PersistTagClaim}
	RecipeLookup = Mode{Access: ReadBottleID, Action: LookupComposition}
	Label        = Mode{Access: ReadBottleID, Action: LookupAndEncodeLabel}
)

var presets = map[string]Mode{
	"tag-write":     TagWrite,
	"recipe-lookup": RecipeLookup,
	"label":         Label,
}

// ParseMode resolves a preset name.
func ParseMode(name string) (Mode, error) {
	mode, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Mode{}, faults.Wrap(faults.ErrConfiguration, component, "mode", fmt.Sprintf("unknown station mode %q", name), nil)
	}
	return mode, nil
}

// String returns the preset name, or access+action for other pairings.
func (m Mode) String() string {
	for name, preset := range presets {
		if preset == m {
			return name
		}
	}
	return m.Access.String() + "+" + m.Action.String()
}

// Valid reports whether both halves name a known strategy.
func (m Mode) Valid() bool {
	return (m.Access == ReadBottleID || m.Access == ClaimAndWriteBottleID) &&
		(m.Action == LookupComposition || m.Action == LookupAndEncodeLabel || m.Action == PersistTagClaim)
}
