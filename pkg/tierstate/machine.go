package tierstate

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/optiad/adpilot/pkg/catalog"
	"github.com/optiad/adpilot/pkg/conditions"
	"github.com/optiad/adpilot/pkg/schema"
)

// Decision is the structured answer to a transition legality check.
// Illegal transitions are reported, never raised, so the caller can relay
// the reason to the user or the model.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Escalation is the result of an auto-escalation check. Reason carries the
// name of the first entry condition that held.
type Escalation struct {
	ShouldEscalate bool   `json:"should_escalate"`
	TargetTier     string `json:"target_tier,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// TransitionContext annotates a committed transition.
type TransitionContext struct {
	Reason      string
	TriggeredBy string
}

// Machine drives tier transitions for conversations against one catalog.
// The machine itself is stateless and safe for concurrent use; each
// TierState must be owned by a single conversation, and concurrent
// operations on the same state must be serialized by the caller.
type Machine struct {
	catalog *catalog.Catalog
	eval    *conditions.Evaluator
	log     *slog.Logger
	now     func() time.Time
}

// NewMachine creates a Machine bound to a catalog. A nil evaluator or
// logger falls back to defaults.
func NewMachine(cat *catalog.Catalog, eval *conditions.Evaluator, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	if eval == nil {
		eval = conditions.New(log)
	}
	return &Machine{
		catalog: cat,
		eval:    eval,
		log:     log,
		now:     time.Now,
	}
}

// NewState creates the initial state for a conversation: always at
// snapshot, no completed tiers, a single "initial" history record. An
// unresolvable playbook id still yields a usable state (domain left empty)
// rather than failing the conversation.
func (m *Machine) NewState(playbookID string, ctx map[string]any) TierState {
	now := m.now()
	st := TierState{
		PlaybookID:     playbookID,
		CurrentTier:    schema.TierSnapshot,
		CompletedTiers: []string{},
		SnapshotData:   map[string]any{},
		TransitionHistory: []TransitionRecord{
			{To: schema.TierSnapshot, Timestamp: now, Reason: "initial"},
		},
		CreatedAt:        now,
		LastTransitionAt: now,
	}
	if pb, ok := m.catalog.Playbook(playbookID); ok {
		st.Domain = pb.Domain
	}
	if len(ctx) > 0 {
		for k, v := range ctx {
			st.SnapshotData[k] = v
		}
		st.SnapshotSavedAt = now
	}
	return st
}

// CanTransitionTo checks whether a transition to target is legal right now.
// Rules, in order: unknown tiers are denied; revisiting a completed tier is
// always allowed; skipping more than one tier ahead is denied (a tier the
// playbook does not define is transparently skippable and does not count);
// otherwise the target tier's enter conditions apply with OR semantics:
// one true condition opens the gate.
func (m *Machine) CanTransitionTo(s TierState, target string, data map[string]any) Decision {
	tgtIdx := schema.TierIndex(target)
	if tgtIdx < 0 {
		return Decision{Allowed: false, Reason: fmt.Sprintf("unknown tier %q", target)}
	}

	if s.IsTierCompleted(target) {
		return Decision{Allowed: true, Reason: "tier already completed"}
	}

	curIdx := schema.TierIndex(s.CurrentTier)
	if curIdx < 0 {
		curIdx = 0
	}
	if m.stepsAhead(s.PlaybookID, curIdx, tgtIdx) > 1 {
		return Decision{Allowed: false, Reason: fmt.Sprintf("cannot skip tiers: %s to %s", s.CurrentTier, target)}
	}

	pol := m.catalog.TierPolicy(s.PlaybookID, target)
	if len(pol.EnterIf) == 0 {
		return Decision{Allowed: true, Reason: "no entry conditions"}
	}
	for _, name := range pol.EnterIf {
		if m.evaluateSingleCondition(s, name, data) {
			return Decision{Allowed: true, Reason: fmt.Sprintf("condition %s satisfied", name)}
		}
	}
	return Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("no entry condition satisfied: needs one of %s", strings.Join(pol.EnterIf, ", ")),
	}
}

// stepsAhead counts how many gated positions lie between curIdx and tgtIdx
// in the fixed tier order. The target always counts; an intermediate tier
// counts only if the playbook defines it. A playbook that defines only
// snapshot and actions therefore reaches actions in a single step.
func (m *Machine) stepsAhead(playbookID string, curIdx, tgtIdx int) int {
	if tgtIdx <= curIdx {
		return 0
	}
	pb, ok := m.catalog.Playbook(playbookID)
	steps := 0
	for i := curIdx + 1; i <= tgtIdx; i++ {
		if i == tgtIdx {
			steps++
			continue
		}
		if ok && pb.Tier(schema.TierOrder[i]) != nil {
			steps++
		}
	}
	return steps
}

// TransitionTo commits a transition: the current tier joins the completed
// set (no duplicate insertion), a history record is appended, the pending
// next step is cleared. It performs no legality check — callers run
// CanTransitionTo first. The split lets auto-escalation and manual
// transitions share one execution primitive.
func (m *Machine) TransitionTo(s TierState, target string, tctx TransitionContext) TierState {
	now := m.now()
	out := s.clone()

	if !out.IsTierCompleted(out.CurrentTier) {
		out.CompletedTiers = append(out.CompletedTiers, out.CurrentTier)
	}

	reason := tctx.Reason
	if reason == "" {
		reason = "user_request"
	}
	out.TransitionHistory = append(out.TransitionHistory, TransitionRecord{
		From:        out.CurrentTier,
		To:          target,
		Timestamp:   now,
		Reason:      reason,
		TriggeredBy: tctx.TriggeredBy,
	})

	out.CurrentTier = target
	out.PendingNextStep = nil
	out.LastTransitionAt = now

	m.log.Debug("tier transition",
		"playbook", out.PlaybookID, "from", s.CurrentTier, "to", target, "reason", reason)
	return out
}

// SaveSnapshotData shallow-merges data into the accumulated snapshot: new
// keys overwrite same-named old keys, nested objects are replaced wholesale.
func (m *Machine) SaveSnapshotData(s TierState, data map[string]any) TierState {
	out := s.clone()
	for k, v := range data {
		out.SnapshotData[k] = v
	}
	out.SnapshotSavedAt = m.now()
	return out
}

// SetPendingNextStep records the one offer the user selected but has not
// acted on yet.
func (m *Machine) SetPendingNextStep(s TierState, offer schema.NextStepOffer) TierState {
	out := s.clone()
	out.PendingNextStep = &PendingNextStep{Offer: offer, SelectedAt: m.now()}
	return out
}

// ClearPendingNextStep drops the pending offer.
func (m *Machine) ClearPendingNextStep(s TierState) TierState {
	out := s.clone()
	out.PendingNextStep = nil
	return out
}

// CurrentPolicy resolves the policy for the state's active tier. An
// undefined tier resolves to the deny-all default.
func (m *Machine) CurrentPolicy(s TierState) schema.TierPolicy {
	return m.catalog.TierPolicy(s.PlaybookID, s.CurrentTier)
}

// AvailableNextSteps returns the offers the user can actually take right
// now: the catalog's ShowIf filter runs against merged snapshot + business
// context + current tier, then each surviving offer is re-checked by
// simulating the transition to its target tier with user_chose_drilldown
// forced true. Offers that are visually eligible but unreachable are
// dropped.
func (m *Machine) AvailableNextSteps(s TierState, businessContext map[string]any) []schema.NextStepOffer {
	merged := make(map[string]any, len(s.SnapshotData)+len(businessContext)+1)
	for k, v := range s.SnapshotData {
		merged[k] = v
	}
	for k, v := range businessContext {
		merged[k] = v
	}
	merged["currentTier"] = s.CurrentTier

	var out []schema.NextStepOffer
	for _, offer := range m.catalog.NextSteps(s.PlaybookID, merged) {
		sim := make(map[string]any, len(merged)+1)
		for k, v := range merged {
			sim[k] = v
		}
		sim["user_chose_drilldown"] = true
		if m.CanTransitionTo(s, offer.TargetTier, sim).Allowed {
			out = append(out, offer)
		}
	}
	return out
}

// EvaluateAllEnterConditions reports, for every tier on the playbook that
// declares entry conditions, the per-condition boolean against data. This
// is a diagnostics view independent of how the conditions combine into a
// gate decision.
func (m *Machine) EvaluateAllEnterConditions(s TierState, data map[string]any) map[string]map[string]bool {
	out := map[string]map[string]bool{}
	pb, ok := m.catalog.Playbook(s.PlaybookID)
	if !ok {
		return out
	}
	for _, tier := range schema.TierOrder {
		tp := pb.Tier(tier)
		if tp == nil || len(tp.EnterIf) == 0 {
			continue
		}
		results := make(map[string]bool, len(tp.EnterIf))
		for _, name := range tp.EnterIf {
			results[name] = m.evaluateSingleCondition(s, name, data)
		}
		out[tier] = results
	}
	return out
}

// CheckAutoEscalation decides whether the system should move the
// conversation to the next tier on its own. Only the single next tier in
// the fixed order is considered. Its entry conditions are evaluated in
// declared order, skipping user_chose_drilldown (a manual trigger), and the
// first condition that holds becomes the escalation reason; later
// conditions are not evaluated.
func (m *Machine) CheckAutoEscalation(s TierState, data map[string]any) Escalation {
	curIdx := schema.TierIndex(s.CurrentTier)
	if curIdx < 0 || curIdx >= len(schema.TierOrder)-1 {
		return Escalation{}
	}
	next := schema.TierOrder[curIdx+1]

	pol := m.catalog.TierPolicy(s.PlaybookID, next)
	if len(pol.EnterIf) == 0 {
		return Escalation{}
	}
	for _, name := range pol.EnterIf {
		if name == condUserChoseDrilldown {
			continue
		}
		if m.evaluateSingleCondition(s, name, data) {
			m.log.Info("auto-escalation triggered",
				"playbook", s.PlaybookID, "from", s.CurrentTier, "to", next, "condition", name)
			return Escalation{ShouldEscalate: true, TargetTier: next, Reason: name}
		}
	}
	return Escalation{}
}

// IsExpired reports whether the state has outlived its TTL. A state with no
// creation timestamp is always expired. There is no grace period and no
// sliding expiry on activity.
func (m *Machine) IsExpired(s TierState) bool {
	if s.CreatedAt.IsZero() {
		return true
	}
	return m.now().Sub(s.CreatedAt) > StateTTL
}
