// Package tierstate implements the per-conversation tier state machine:
// which capability tier is active, which tiers are completed, and the rules
// governing transitions, auto-escalation and persistence. State values are
// copy-on-write — every mutating operation returns a new TierState — so a
// single owner per conversation can use them without further locking.
package tierstate

import (
	"encoding/json"
	"time"

	"github.com/optiad/adpilot/pkg/schema"
)

// StateTTL is how long a conversation state stays valid after creation.
// Expiry is advisory: the orchestrator must check IsExpired before trusting
// a loaded state; nothing sweeps expired states in the background.
const StateTTL = time.Hour

// historyLimit caps the transition history kept in the persisted record.
const historyLimit = 10

// TransitionRecord is one entry in the append-only transition log.
type TransitionRecord struct {
	From        string    `json:"from,omitempty"`
	To          string    `json:"to"`
	Timestamp   time.Time `json:"timestamp"`
	Reason      string    `json:"reason"`
	TriggeredBy string    `json:"triggered_by,omitempty"`
}

// PendingNextStep is the single selected-but-not-yet-acted-on offer.
// Cleared on every committed transition.
type PendingNextStep struct {
	Offer      schema.NextStepOffer `json:"offer"`
	SelectedAt time.Time            `json:"selected_at"`
}

// TierState is the mutable per-conversation entity. Callers never assign
// fields directly; all mutation goes through Machine operations.
type TierState struct {
	PlaybookID        string             `json:"playbook_id"`
	Domain            string             `json:"domain,omitempty"`
	CurrentTier       string             `json:"current_tier"`
	CompletedTiers    []string           `json:"completed_tiers"`
	SnapshotData      map[string]any     `json:"snapshot_data"`
	SnapshotSavedAt   time.Time          `json:"snapshot_saved_at,omitempty"`
	TransitionHistory []TransitionRecord `json:"transition_history"`
	PendingNextStep   *PendingNextStep   `json:"pending_next_step,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	LastTransitionAt  time.Time          `json:"last_transition_at"`
}

// IsTierCompleted reports membership in the completed set.
func (s TierState) IsTierCompleted(tier string) bool {
	for _, t := range s.CompletedTiers {
		if t == tier {
			return true
		}
	}
	return false
}

// clone returns a deep-enough copy: slices and the top-level snapshot map
// are copied so the returned state shares no mutable structure with the
// receiver. Nested snapshot values are shared — snapshot merging replaces
// nested objects wholesale, never mutates them.
func (s TierState) clone() TierState {
	out := s
	out.CompletedTiers = append([]string(nil), s.CompletedTiers...)
	out.TransitionHistory = append([]TransitionRecord(nil), s.TransitionHistory...)
	out.SnapshotData = make(map[string]any, len(s.SnapshotData))
	for k, v := range s.SnapshotData {
		out.SnapshotData[k] = v
	}
	if s.PendingNextStep != nil {
		pending := *s.PendingNextStep
		out.PendingNextStep = &pending
	}
	return out
}

// persistable returns the state as stored: identical fields except the
// transition history is truncated to the most recent entries.
func (s TierState) persistable() TierState {
	out := s.clone()
	if len(out.TransitionHistory) > historyLimit {
		out.TransitionHistory = out.TransitionHistory[len(out.TransitionHistory)-historyLimit:]
	}
	return out
}

// Serialize encodes the state for the persistence adapter, truncating the
// transition history to the most recent 10 entries.
func Serialize(s TierState) ([]byte, error) {
	return json.Marshal(s.persistable())
}

// Deserialize reconstructs a TierState from a persisted record with
// defensive defaults for every field: the current tier defaults to
// snapshot, collections default to empty, scalars to absent. Partially
// written or schema-drifted records decode field by field; a field that
// fails to decode keeps its default instead of failing the whole record.
func Deserialize(data []byte) TierState {
	st := TierState{
		CurrentTier:       schema.TierSnapshot,
		CompletedTiers:    []string{},
		SnapshotData:      map[string]any{},
		TransitionHistory: []TransitionRecord{},
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return st
	}

	decodeField(raw, "playbook_id", &st.PlaybookID)
	decodeField(raw, "domain", &st.Domain)
	decodeField(raw, "current_tier", &st.CurrentTier)
	decodeField(raw, "completed_tiers", &st.CompletedTiers)
	decodeField(raw, "snapshot_data", &st.SnapshotData)
	decodeField(raw, "snapshot_saved_at", &st.SnapshotSavedAt)
	decodeField(raw, "transition_history", &st.TransitionHistory)
	decodeField(raw, "pending_next_step", &st.PendingNextStep)
	decodeField(raw, "created_at", &st.CreatedAt)
	decodeField(raw, "last_transition_at", &st.LastTransitionAt)

	if schema.TierIndex(st.CurrentTier) < 0 {
		st.CurrentTier = schema.TierSnapshot
	}
	if st.CompletedTiers == nil {
		st.CompletedTiers = []string{}
	}
	if st.SnapshotData == nil {
		st.SnapshotData = map[string]any{}
	}
	if st.TransitionHistory == nil {
		st.TransitionHistory = []TransitionRecord{}
	}
	return st
}

// decodeField decodes one field, leaving dst untouched on any error.
func decodeField[T any](raw map[string]json.RawMessage, key string, dst *T) {
	msg, ok := raw[key]
	if !ok {
		return
	}
	var v T
	if err := json.Unmarshal(msg, &v); err == nil {
		*dst = v
	}
}
