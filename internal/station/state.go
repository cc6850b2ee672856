package station

import (
	"time"

	"tagstation/internal/card"
	"tagstation/internal/catalog"
)

// State is a controller state.
type State int

const (
	StateInit State = iota
	StateAwaitCard
	StateAccessCard
	StateReconcile
	StateDone
	StateFailed
)

var stateNames = [...]string{"Init", "AwaitCard", "AccessCard", "Reconcile", "Done", "Failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Terminal reports whether s ends a cycle.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Session is the mutable state of one cycle. It is discarded once the cycle
// reaches a terminal state; Result carries a copy.
type Session struct {
	UID         card.UID
	BottleID    *catalog.BottleID
	RecipeID    *catalog.RecipeID
	TaggedAt    *time.Time
	Composition []catalog.CompositionRow
	LabelPath   string
}

func (s *Session) dropCard() {
	s.UID = nil
}

func (s Session) clone() Session {
	out := s
	out.UID = append(card.UID(nil), s.UID...)
	out.Composition = append([]catalog.CompositionRow(nil), s.Composition...)
	return out
}

// Result describes how a cycle ended.
type Result struct {
	RunID      string
	Mode       Mode
	State      State
	Trace      []State
	Session    Session
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// OK reports whether the cycle reached Done.
func (r Result) OK() bool {
	return r.State == StateDone
}
