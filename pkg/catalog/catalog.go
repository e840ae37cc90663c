// Package catalog holds the immutable playbook registry and the read-only
// policy queries made against it. A Catalog is built once at startup and is
// safe for unlimited concurrent reads; it is passed explicitly to its
// consumers rather than exposed as a process-wide singleton.
package catalog

import (
	"fmt"
	"log/slog"

	"github.com/optiad/adpilot/pkg/conditions"
	"github.com/optiad/adpilot/pkg/schema"
)

// DenyAllPolicy is the resolved policy for any playbook/tier pair where the
// tier is undefined: no tools, no call budget, dangerous actions blocked.
// Returned by value so callers can always safely read fields.
var DenyAllPolicy = schema.TierPolicy{
	AllowedTools:    nil,
	MaxToolCalls:    0,
	DangerousPolicy: schema.DangerousBlock,
	EnterIf:         nil,
}

// Catalog is the in-memory playbook registry plus a derived intent index.
type Catalog struct {
	playbooks map[string]*schema.Playbook
	order     []string          // declaration order of playbook ids
	byIntent  map[string]string // intent -> playbook id
	eval      *conditions.Evaluator
	log       *slog.Logger
}

// New builds a Catalog from playbooks in declaration order. The intent index
// is built by iterating playbooks in that order; if two playbooks declare
// the same intent the later-declared playbook wins. ValidateCatalog rejects
// that case for file-loaded catalogs, so shadowing can only happen in
// programmatically built ones.
func New(playbooks []*schema.Playbook, eval *conditions.Evaluator, log *slog.Logger) *Catalog {
	if eval == nil {
		eval = conditions.New(log)
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Catalog{
		playbooks: make(map[string]*schema.Playbook, len(playbooks)),
		byIntent:  make(map[string]string),
		eval:      eval,
		log:       log,
	}
	for _, pb := range playbooks {
		if pb == nil {
			continue
		}
		if _, exists := c.playbooks[pb.ID]; !exists {
			c.order = append(c.order, pb.ID)
		}
		c.playbooks[pb.ID] = pb
		for _, intent := range pb.Intents {
			c.byIntent[intent] = pb.ID
		}
	}
	return c
}

// NewFromDir loads, validates and indexes every playbook YAML in dir.
func NewFromDir(dir string, eval *conditions.Evaluator, log *slog.Logger) (*Catalog, error) {
	playbooks, errs := schema.ValidateDir(dir)
	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog validation failed: %v", errs[0])
	}
	return New(playbooks, eval, log), nil
}

// Playbook returns the playbook with the given id.
func (c *Catalog) Playbook(id string) (*schema.Playbook, bool) {
	pb, ok := c.playbooks[id]
	return pb, ok
}

// PlaybookByIntent resolves an intent string to its playbook.
func (c *Catalog) PlaybookByIntent(intent string) (*schema.Playbook, bool) {
	id, ok := c.byIntent[intent]
	if !ok {
		return nil, false
	}
	return c.Playbook(id)
}

// ToolsForTier returns the allowed tools for a playbook tier. An unknown
// playbook or undefined tier yields an empty list.
func (c *Catalog) ToolsForTier(playbookID, tier string) []string {
	pb, ok := c.playbooks[playbookID]
	if !ok {
		return nil
	}
	tp := pb.Tier(tier)
	if tp == nil {
		return nil
	}
	return tp.AllowedTools
}

// TierPolicy resolves the policy for a playbook tier. An unknown playbook or
// undefined tier resolves to DenyAllPolicy, never an absent result — a stale
// playbook reference degrades a conversation to "no capability" instead of
// crashing it.
func (c *Catalog) TierPolicy(playbookID, tier string) schema.TierPolicy {
	pb, ok := c.playbooks[playbookID]
	if !ok {
		return DenyAllPolicy
	}
	tp := pb.Tier(tier)
	if tp == nil {
		return DenyAllPolicy
	}
	return *tp
}

// ClarifyingQuestions returns the playbook's questions filtered by the
// conversation context. A question is included when AlwaysAsk is set, when
// it has no AskIf, or when its AskIf holds. The common AskIf shortcuts are
// answered from explicit context fields without invoking the expression
// evaluator.
func (c *Catalog) ClarifyingQuestions(playbookID string, ctx map[string]any) []schema.ClarifyingQuestion {
	pb, ok := c.playbooks[playbookID]
	if !ok {
		return nil
	}

	var out []schema.ClarifyingQuestion
	for _, q := range pb.ClarifyingQuestions {
		if q.AlwaysAsk || q.AskIf == "" || c.askIfHolds(q.AskIf, ctx) {
			out = append(out, q)
		}
	}
	return out
}

// askIfHolds dispatches the fixed AskIf shortcuts before falling back to the
// generic evaluator.
func (c *Catalog) askIfHolds(askIf string, ctx map[string]any) bool {
	switch askIf {
	case "period_not_in_message":
		return !hasValue(ctx, "period")
	case "metric_not_in_message":
		return !hasValue(ctx, "metric")
	case "stage_not_in_message":
		return !hasValue(ctx, "stage")
	case "directions_count > 1":
		return asFloat(ctx["directions_count"]) > 1
	}
	return c.eval.Evaluate(askIf, ctx)
}

// NextSteps returns the playbook's next-step offers filtered against the
// snapshot data. An offer with no ShowIf is always included; otherwise
// ShowIf goes through the generic evaluator, no shortcuts.
func (c *Catalog) NextSteps(playbookID string, snapshotData map[string]any) []schema.NextStepOffer {
	pb, ok := c.playbooks[playbookID]
	if !ok {
		return nil
	}

	var out []schema.NextStepOffer
	for _, ns := range pb.NextSteps {
		if ns.ShowIf == "" || c.eval.Evaluate(ns.ShowIf, snapshotData) {
			out = append(out, ns)
		}
	}
	return out
}

// EvaluateEnterConditions evaluates every named playbook-level diagnostic
// condition against data. The result map is keyed by condition name. Inputs
// and results are logged for observability only.
func (c *Catalog) EvaluateEnterConditions(playbookID string, data map[string]any) map[string]bool {
	pb, ok := c.playbooks[playbookID]
	if !ok {
		return map[string]bool{}
	}

	results := make(map[string]bool, len(pb.EnterConditions))
	for name, expression := range pb.EnterConditions {
		results[name] = c.eval.Evaluate(expression, data)
	}
	c.log.Debug("evaluated enter conditions",
		"playbook", playbookID, "data", data, "results", results)
	return results
}

// EnterCondition returns the named playbook-level condition expression.
func (c *Catalog) EnterCondition(playbookID, name string) (string, bool) {
	pb, ok := c.playbooks[playbookID]
	if !ok || pb.EnterConditions == nil {
		return "", false
	}
	expression, ok := pb.EnterConditions[name]
	return expression, ok
}

// PlaybooksForDomain returns all playbooks tagged with domain, in
// declaration order.
func (c *Catalog) PlaybooksForDomain(domain string) []*schema.Playbook {
	var out []*schema.Playbook
	for _, id := range c.order {
		if pb := c.playbooks[id]; pb.Domain == domain {
			out = append(out, pb)
		}
	}
	return out
}

// AllPlaybookIDs returns every playbook id in declaration order.
func (c *Catalog) AllPlaybookIDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// hasValue reports whether ctx carries a non-empty value for key.
func hasValue(ctx map[string]any, key string) bool {
	v, ok := ctx[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	return true
}

// asFloat coerces the numeric types that survive JSON/YAML decoding.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case float32:
		return float64(n)
	}
	return 0
}
