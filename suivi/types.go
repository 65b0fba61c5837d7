package suivi

import (
	"github.com/hazyhaar/praxis/suivi/internal/store"
	"github.com/hazyhaar/praxis/suivi/internal/transition"
)

// Event is one inbound clinical occurrence.
type Event = transition.Event

// Snapshot is one append-only clinical state row.
type Snapshot = store.Snapshot

// Suggestion is one practitioner-facing recommendation.
type Suggestion = store.Suggestion

// Flexibility trend values, re-exported for callers.
const (
	TrendUp   = store.TrendUp
	TrendDown = store.TrendDown
	TrendFlat = store.TrendFlat
)

// Processing outcomes reported by ProcessEvent.
const (
	OutcomeAccepted  = "accepted"
	OutcomeGated     = "gated"
	OutcomeDuplicate = "duplicate"
)

// Result describes what ProcessEvent did with an event.
//
// Accepted: Snapshot is the freshly persisted row, Suggestion the winning
// recommendation or nil. Duplicate: Snapshot is the previously persisted row
// for the same fingerprint. Gated: both are nil — the candidate's system
// confidence fell below the gate and nothing was written.
type Result struct {
	Outcome    string      `json:"outcome"`
	Snapshot   *Snapshot   `json:"snapshot,omitempty"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
}
