package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalPlaybook = `
id: ads-optimizer
name: Ads Optimizer
domain: ads
intents:
  - why_expensive_leads
tiers:
  snapshot:
    allowed_tools:
      - ads.overview
  drilldown:
    allowed_tools:
      - ads.overview
      - ads.breakdown
    max_tool_calls: 8
    enter_if:
      - user_chose_drilldown
      - isHighCPL
`

// Loading fills per-tier defaults for max_tool_calls and dangerous_policy.
func TestLoad_Defaults(t *testing.T) {
	pb, err := Load(strings.NewReader(minimalPlaybook))
	if err != nil {
		t.Fatal(err)
	}

	snap := pb.Tier(TierSnapshot)
	if snap == nil {
		t.Fatal("snapshot tier missing")
	}
	if snap.MaxToolCalls != DefaultMaxToolCalls {
		t.Errorf("snapshot max_tool_calls = %d, want %d", snap.MaxToolCalls, DefaultMaxToolCalls)
	}
	if snap.DangerousPolicy != DangerousBlock {
		t.Errorf("snapshot dangerous_policy = %q, want block", snap.DangerousPolicy)
	}

	drill := pb.Tier(TierDrilldown)
	if drill.MaxToolCalls != 8 {
		t.Errorf("drilldown max_tool_calls = %d, want 8 (explicit value kept)", drill.MaxToolCalls)
	}
}

// Unknown YAML fields are rejected, not silently dropped.
func TestLoad_UnknownFieldRejected(t *testing.T) {
	src := "id: x\nname: X\nbogus_field: true\ntiers:\n  snapshot: {}\n"
	if _, err := Load(strings.NewReader(src)); err == nil {
		t.Error("expected error for unknown field")
	}
}

// An undefined tier resolves to nil, never an empty policy.
func TestPlaybook_UndefinedTier(t *testing.T) {
	pb, err := Load(strings.NewReader(minimalPlaybook))
	if err != nil {
		t.Fatal(err)
	}
	if pb.Tier(TierActions) != nil {
		t.Error("expected nil for undefined actions tier")
	}
	if pb.Tier("bogus") != nil {
		t.Error("expected nil for unknown tier name")
	}
}

func TestTierIndex(t *testing.T) {
	if got := TierIndex(TierSnapshot); got != 0 {
		t.Errorf("TierIndex(snapshot) = %d, want 0", got)
	}
	if got := TierIndex(TierActions); got != 2 {
		t.Errorf("TierIndex(actions) = %d, want 2", got)
	}
	if got := TierIndex("bogus"); got != -1 {
		t.Errorf("TierIndex(bogus) = %d, want -1", got)
	}
}

// LoadDir loads playbooks in filename order and fills a missing id from the
// filename.
func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "b-second.yaml"), "name: Second\ntiers:\n  snapshot: {allowed_tools: [t]}\n")
	writeFile(t, filepath.Join(dir, "a-first.yaml"), "id: first\nname: First\ntiers:\n  snapshot: {allowed_tools: [t]}\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignore me")

	playbooks, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(playbooks) != 2 {
		t.Fatalf("loaded %d playbooks, want 2", len(playbooks))
	}
	if playbooks[0].ID != "first" {
		t.Errorf("first playbook id = %q, want %q", playbooks[0].ID, "first")
	}
	if playbooks[1].ID != "b-second" {
		t.Errorf("second playbook id = %q, want filename-derived %q", playbooks[1].ID, "b-second")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}
