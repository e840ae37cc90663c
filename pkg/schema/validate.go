package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "tiers.actions.max_tool_calls")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

var playbookIDPattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// ValidateFile performs the full 3-phase validation pipeline on a playbook file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateFile(path string) (*Playbook, []*ValidationError) {
	var allErrors []*ValidationError

	pb, err := LoadFile(path)
	if err != nil {
		allErrors = append(allErrors, &ValidationError{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		})
		return nil, allErrors
	}

	allErrors = append(allErrors, validateSemantic(pb)...)
	allErrors = append(allErrors, ValidateDomain(pb)...)

	if len(allErrors) > 0 {
		return pb, allErrors
	}
	return pb, nil
}

// validateSemantic validates the playbook against the generated JSON Schema.
func validateSemantic(pb *Playbook) []*ValidationError {
	data, err := json.Marshal(pb)
	if err != nil {
		return semanticError(fmt.Sprintf("marshal for schema validation: %v", err))
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semanticError(fmt.Sprintf("generate schema: %v", err))
	}

	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return semanticError(fmt.Sprintf("unmarshal schema: %v", err))
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("playbook-v0.json", schemaDoc); err != nil {
		return semanticError(fmt.Sprintf("add schema resource: %v", err))
	}

	sch, err := c.Compile("playbook-v0.json")
	if err != nil {
		return semanticError(fmt.Sprintf("compile schema: %v", err))
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return semanticError(fmt.Sprintf("unmarshal document: %v", err))
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = semanticError(err.Error())
		}
		return errs
	}
	return nil
}

func semanticError(msg string) []*ValidationError {
	return []*ValidationError{{Phase: "semantic", Message: msg, Severity: "error"}}
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation of one playbook.
// Returns a slice of errors; empty means valid.
func ValidateDomain(pb *Playbook) []*ValidationError {
	var errs []*ValidationError

	addErr := func(path, msg string) {
		errs = append(errs, &ValidationError{Phase: "domain", Path: path, Message: msg, Severity: "error"})
	}

	if pb.ID == "" {
		addErr("id", "id is required")
	} else if !playbookIDPattern.MatchString(pb.ID) {
		addErr("id", fmt.Sprintf("id %q must be lowercase alphanumeric with hyphens or underscores", pb.ID))
	}
	if pb.Name == "" {
		addErr("name", "name is required")
	}

	// Every playbook must define the snapshot tier; it is the entry state.
	if pb.Tier(TierSnapshot) == nil {
		addErr("tiers", "tiers must define snapshot")
	}

	for name, tp := range pb.Tiers {
		if TierIndex(name) < 0 {
			addErr("tiers."+name, fmt.Sprintf("unknown tier %q, expected one of %v", name, TierOrder))
			continue
		}
		if tp == nil {
			addErr("tiers."+name, "tier policy must not be empty")
			continue
		}
		if tp.MaxToolCalls < 0 {
			addErr(fmt.Sprintf("tiers.%s.max_tool_calls", name), "max_tool_calls must be positive")
		}
		switch tp.DangerousPolicy {
		case DangerousBlock, DangerousAllow, DangerousRequireApproval:
		default:
			addErr(fmt.Sprintf("tiers.%s.dangerous_policy", name),
				fmt.Sprintf("unknown dangerous_policy %q", tp.DangerousPolicy))
		}
		// A duplicate tool name would silently expand a call budget read as
		// a count; reject at authoring time.
		seen := map[string]bool{}
		for _, tool := range tp.AllowedTools {
			if seen[tool] {
				addErr(fmt.Sprintf("tiers.%s.allowed_tools", name), fmt.Sprintf("duplicate tool %q", tool))
			}
			seen[tool] = true
		}
	}

	for i, q := range pb.ClarifyingQuestions {
		if q.Field == "" {
			addErr(fmt.Sprintf("clarifying_questions[%d].field", i), "field is required")
		}
		if q.Text == "" {
			addErr(fmt.Sprintf("clarifying_questions[%d].text", i), "text is required")
		}
		if q.Type == "choice" && len(q.Options) == 0 {
			addErr(fmt.Sprintf("clarifying_questions[%d].options", i), "choice question needs options")
		}
	}

	for i, ns := range pb.NextSteps {
		if ns.ID == "" {
			addErr(fmt.Sprintf("next_steps[%d].id", i), "id is required")
		}
		if TierIndex(ns.TargetTier) < 0 {
			addErr(fmt.Sprintf("next_steps[%d].target_tier", i),
				fmt.Sprintf("unknown target_tier %q", ns.TargetTier))
		}
	}

	return errs
}

// ValidateCatalog checks cross-playbook rules over a whole catalog:
// playbook ids must be unique, and an intent may map to only one playbook.
// Without the intent rule a later-declared playbook silently shadows an
// earlier one in the intent index.
func ValidateCatalog(playbooks []*Playbook) []*ValidationError {
	var errs []*ValidationError

	ids := map[string]bool{}
	intents := map[string]string{} // intent -> playbook id that declared it
	for _, pb := range playbooks {
		if ids[pb.ID] {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     "id",
				Message:  fmt.Sprintf("duplicate playbook id %q", pb.ID),
				Severity: "error",
			})
		}
		ids[pb.ID] = true

		for _, intent := range pb.Intents {
			if owner, ok := intents[intent]; ok {
				errs = append(errs, &ValidationError{
					Phase:    "domain",
					Path:     "intents",
					Message:  fmt.Sprintf("intent %q declared by both %q and %q", intent, owner, pb.ID),
					Severity: "error",
				})
				continue
			}
			intents[intent] = pb.ID
		}
	}
	return errs
}

// ValidateDir loads and validates every playbook in dir, including the
// cross-playbook catalog rules. Returns the playbooks in declaration order
// and any validation errors.
func ValidateDir(dir string) ([]*Playbook, []*ValidationError) {
	playbooks, err := LoadDir(dir)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}

	var allErrors []*ValidationError
	for _, pb := range playbooks {
		for _, e := range validateSemantic(pb) {
			e.Path = pb.ID + ": " + e.Path
			allErrors = append(allErrors, e)
		}
		for _, e := range ValidateDomain(pb) {
			e.Path = pb.ID + ": " + e.Path
			allErrors = append(allErrors, e)
		}
	}
	allErrors = append(allErrors, ValidateCatalog(playbooks)...)
	return playbooks, allErrors
}
