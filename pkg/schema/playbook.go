// Package schema defines the Go struct types for the playbook catalog YAML
// schema and provides strict YAML parsing.
package schema

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Canonical tier names, in escalation order. A playbook may omit drilldown
// or actions, but snapshot is always required.
const (
	TierSnapshot  = "snapshot"
	TierDrilldown = "drilldown"
	TierActions   = "actions"
)

// TierOrder is the fixed total order of tiers: snapshot < drilldown < actions.
var TierOrder = []string{TierSnapshot, TierDrilldown, TierActions}

// TierIndex returns the position of a tier in the canonical order,
// or -1 if the name is not a canonical tier.
func TierIndex(name string) int {
	for i, t := range TierOrder {
		if t == name {
			return i
		}
	}
	return -1
}

// Dangerous-action policies for a tier. A dangerous action is any tool call
// classified as mutating.
const (
	DangerousBlock           = "block"
	DangerousAllow           = "allow"
	DangerousRequireApproval = "require_approval"
)

// DefaultMaxToolCalls applies when a defined tier leaves max_tool_calls unset.
const DefaultMaxToolCalls = 5

// Playbook is a named automation procedure bound to one or more
// conversational intents. Constructed once at startup, immutable thereafter.
type Playbook struct {
	ID                  string                 `yaml:"id"                             json:"id"                             jsonschema:"required"`
	Name                string                 `yaml:"name"                           json:"name"                           jsonschema:"required"`
	Domain              string                 `yaml:"domain,omitempty"               json:"domain,omitempty"`
	Description         string                 `yaml:"description,omitempty"          json:"description,omitempty"`
	Intents             []string               `yaml:"intents,omitempty"              json:"intents,omitempty"`
	Tiers               map[string]*TierPolicy `yaml:"tiers"                          json:"tiers"                          jsonschema:"required"`
	ClarifyingQuestions []ClarifyingQuestion   `yaml:"clarifying_questions,omitempty" json:"clarifying_questions,omitempty"`
	NextSteps           []NextStepOffer        `yaml:"next_steps,omitempty"           json:"next_steps,omitempty"`
	EnterConditions     map[string]string      `yaml:"enter_conditions,omitempty"     json:"enter_conditions,omitempty"`
}

// TierPolicy is the capability contract for one tier of one playbook.
type TierPolicy struct {
	AllowedTools    []string `yaml:"allowed_tools,omitempty"    json:"allowed_tools,omitempty"`
	MaxToolCalls    int      `yaml:"max_tool_calls,omitempty"   json:"max_tool_calls,omitempty"`
	DangerousPolicy string   `yaml:"dangerous_policy,omitempty" json:"dangerous_policy,omitempty" jsonschema:"enum=block,enum=allow,enum=require_approval"`
	EnterIf         []string `yaml:"enter_if,omitempty"         json:"enter_if,omitempty"`
}

// ClarifyingQuestion is a question the assistant asks before running tools.
// It is asked when AlwaysAsk is set, when AskIf is empty, or when AskIf
// evaluates true against the conversation context.
type ClarifyingQuestion struct {
	Field     string           `yaml:"field"                json:"field"     jsonschema:"required"`
	Type      string           `yaml:"type"                 json:"type"      jsonschema:"required,enum=period,enum=entity,enum=choice,enum=amount"`
	Text      string           `yaml:"text"                 json:"text"      jsonschema:"required"`
	Options   []QuestionOption `yaml:"options,omitempty"    json:"options,omitempty"`
	Default   string           `yaml:"default,omitempty"    json:"default,omitempty"`
	AlwaysAsk bool             `yaml:"always_ask,omitempty" json:"always_ask,omitempty"`
	AskIf     string           `yaml:"ask_if,omitempty"     json:"ask_if,omitempty"`
}

// QuestionOption is a single selectable answer for a choice question.
type QuestionOption struct {
	Value string `yaml:"value"           json:"value" jsonschema:"required"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
}

// NextStepOffer is a follow-up action offered to the user after a tier
// produces results. ShowIf is evaluated against merged snapshot + business
// context.
type NextStepOffer struct {
	ID         string `yaml:"id"                json:"id"          jsonschema:"required"`
	Label      string `yaml:"label"             json:"label"       jsonschema:"required"`
	TargetTier string `yaml:"target_tier"       json:"target_tier" jsonschema:"required,enum=snapshot,enum=drilldown,enum=actions"`
	Icon       string `yaml:"icon,omitempty"    json:"icon,omitempty"`
	ShowIf     string `yaml:"show_if,omitempty" json:"show_if,omitempty"`
}

// LoadFile reads and parses a playbook YAML file with strict unknown-field
// rejection. Returns the parsed Playbook or an error.
func LoadFile(path string) (*Playbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playbook: %w", err)
	}
	defer f.Close()
	pb, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pb, nil
}

// Load parses a playbook from an io.Reader with strict unknown-field rejection.
func Load(r io.Reader) (*Playbook, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var pb Playbook
	if err := dec.Decode(&pb); err != nil {
		return nil, fmt.Errorf("decode playbook: %w", err)
	}
	pb.Normalize()
	return &pb, nil
}

// LoadDir loads every *.yaml / *.yml playbook in dir, in filename order.
// Filename order is the catalog declaration order, which drives intent
// index precedence.
func LoadDir(dir string) ([]*Playbook, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read playbooks dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var playbooks []*Playbook
	for _, name := range names {
		pb, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if pb.ID == "" {
			pb.ID = strings.TrimSuffix(strings.TrimSuffix(strings.ToLower(name), ".yaml"), ".yml")
		}
		playbooks = append(playbooks, pb)
	}
	return playbooks, nil
}

// Normalize fills per-tier defaults: max_tool_calls 5 and dangerous_policy
// block for every tier the playbook defines. Undefined tiers stay undefined;
// the catalog resolves those to the deny-all policy.
func (p *Playbook) Normalize() {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Domain = strings.TrimSpace(p.Domain)
	for _, tp := range p.Tiers {
		if tp == nil {
			continue
		}
		if tp.MaxToolCalls == 0 {
			tp.MaxToolCalls = DefaultMaxToolCalls
		}
		if tp.DangerousPolicy == "" {
			tp.DangerousPolicy = DangerousBlock
		}
	}
}

// Tier returns the policy the playbook defines for a tier, or nil if the
// tier is undefined on this playbook.
func (p *Playbook) Tier(name string) *TierPolicy {
	if p == nil || p.Tiers == nil {
		return nil
	}
	return p.Tiers[name]
}
