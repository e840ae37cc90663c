package tierstate

import (
	"testing"
	"time"

	"github.com/optiad/adpilot/pkg/schema"
)

func sampleState() TierState {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return TierState{
		PlaybookID:     "ads-optimizer",
		Domain:         "ads",
		CurrentTier:    schema.TierDrilldown,
		CompletedTiers: []string{schema.TierSnapshot},
		SnapshotData:   map[string]any{"cpl": 50.0, "period": "7d"},
		TransitionHistory: []TransitionRecord{
			{To: schema.TierSnapshot, Timestamp: now, Reason: "initial"},
			{From: schema.TierSnapshot, To: schema.TierDrilldown, Timestamp: now, Reason: "user_request"},
		},
		CreatedAt:        now,
		LastTransitionAt: now,
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	in := sampleState()
	in.PendingNextStep = &PendingNextStep{
		Offer:      schema.NextStepOffer{ID: "drill", Label: "Dig in", TargetTier: schema.TierDrilldown},
		SelectedAt: in.CreatedAt,
	}

	data, err := Serialize(in)
	if err != nil {
		t.Fatal(err)
	}
	out := Deserialize(data)

	if out.PlaybookID != in.PlaybookID || out.CurrentTier != in.CurrentTier {
		t.Errorf("identity fields lost: %+v", out)
	}
	if len(out.CompletedTiers) != 1 || out.CompletedTiers[0] != schema.TierSnapshot {
		t.Errorf("CompletedTiers = %v", out.CompletedTiers)
	}
	if out.SnapshotData["cpl"] != 50.0 || out.SnapshotData["period"] != "7d" {
		t.Errorf("SnapshotData = %v", out.SnapshotData)
	}
	if len(out.TransitionHistory) != 2 {
		t.Errorf("TransitionHistory = %v", out.TransitionHistory)
	}
	if out.PendingNextStep == nil || out.PendingNextStep.Offer.ID != "drill" {
		t.Errorf("PendingNextStep = %+v", out.PendingNextStep)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", out.CreatedAt, in.CreatedAt)
	}
}

// The persisted record keeps only the 10 most recent history entries; the
// in-memory state is not touched.
func TestSerialize_TruncatesHistory(t *testing.T) {
	st := sampleState()
	st.TransitionHistory = nil
	for i := 0; i < 25; i++ {
		st.TransitionHistory = append(st.TransitionHistory, TransitionRecord{
			To:     schema.TierSnapshot,
			Reason: "user_request",
		})
	}
	st.TransitionHistory[24].Reason = "latest"

	data, err := Serialize(st)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.TransitionHistory) != 25 {
		t.Error("Serialize mutated the input state")
	}

	out := Deserialize(data)
	if len(out.TransitionHistory) != 10 {
		t.Fatalf("persisted history length = %d, want 10", len(out.TransitionHistory))
	}
	if out.TransitionHistory[9].Reason != "latest" {
		t.Error("truncation must keep the most recent entries")
	}
}

// Garbage input deserializes to a usable default state instead of failing.
func TestDeserialize_Defensive(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("][ nope")},
		{"empty", nil},
		{"json array", []byte(`[1,2,3]`)},
		{"wrong field types", []byte(`{"playbook_id": 7, "current_tier": {}, "completed_tiers": "x"}`)},
		{"unknown tier", []byte(`{"current_tier": "superuser"}`)},
	}
	for _, tc := range cases {
		st := Deserialize(tc.data)
		if st.CurrentTier != schema.TierSnapshot {
			t.Errorf("%s: CurrentTier = %q, want snapshot", tc.name, st.CurrentTier)
		}
		if st.CompletedTiers == nil || st.SnapshotData == nil || st.TransitionHistory == nil {
			t.Errorf("%s: collections must default to empty, got %+v", tc.name, st)
		}
	}
}

// Fields that decode cleanly survive even when a sibling field is corrupt.
func TestDeserialize_PartialRecord(t *testing.T) {
	data := []byte(`{"playbook_id": "ads-optimizer", "current_tier": 42, "snapshot_data": {"spend": 10}}`)

	st := Deserialize(data)
	if st.PlaybookID != "ads-optimizer" {
		t.Errorf("PlaybookID = %q", st.PlaybookID)
	}
	if st.CurrentTier != schema.TierSnapshot {
		t.Errorf("CurrentTier = %q, want snapshot default", st.CurrentTier)
	}
	if st.SnapshotData["spend"] != 10.0 {
		t.Errorf("SnapshotData = %v", st.SnapshotData)
	}
}

func TestClone_Isolation(t *testing.T) {
	st := sampleState()
	cp := st.clone()

	cp.SnapshotData["cpl"] = 99.0
	cp.CompletedTiers[0] = "mutated"

	if st.SnapshotData["cpl"] != 50.0 {
		t.Error("clone shares snapshot map with original")
	}
	if st.CompletedTiers[0] != schema.TierSnapshot {
		t.Error("clone shares completed slice with original")
	}
}
