package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/optiad/adpilot/pkg/catalog"
	"github.com/optiad/adpilot/pkg/schema"
	"github.com/optiad/adpilot/pkg/store"
	"github.com/optiad/adpilot/pkg/tierstate"
)

// Service holds the wiring the MCP handlers operate on. The catalog and
// machine are immutable after construction; per-conversation state lives
// behind the store.
type Service struct {
	Catalog *catalog.Catalog
	Machine *tierstate.Machine
	Store   store.Store
}

// HandleValidate implements the adpilot/validate MCP tool.
func (svc *Service) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	if info.IsDir() {
		playbooks, errs := schema.ValidateDir(path)
		if hasErrors(errs) {
			return errorResult(formatErrors(errs)), nil
		}
		return textResult(fmt.Sprintf("✓ %d playbooks are valid", len(playbooks))), nil
	}

	pb, errs := schema.ValidateFile(path)
	if hasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ playbook %s is valid (%d intents)", pb.ID, len(pb.Intents))), nil
}

// HandleSchema implements the adpilot/schema MCP tool.
func (svc *Service) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleStart implements the adpilot/start MCP tool.
func (svc *Service) HandleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	conversationID, _ := args["conversation_id"].(string)
	if conversationID == "" {
		return errorResult("conversation_id argument is required"), nil
	}
	intent, _ := args["intent"].(string)
	if intent == "" {
		return errorResult("intent argument is required"), nil
	}

	pb, ok := svc.Catalog.PlaybookByIntent(intent)
	if !ok {
		return errorResult(fmt.Sprintf("no playbook registered for intent %q", intent)), nil
	}

	initialCtx, _ := args["context"].(map[string]any)
	st := svc.Machine.NewState(pb.ID, initialCtx)
	if err := store.SaveState(ctx, svc.Store, conversationID, st); err != nil {
		return errorResult(fmt.Sprintf("save state: %s", err)), nil
	}

	response := map[string]any{
		"playbook_id":  pb.ID,
		"domain":       pb.Domain,
		"current_tier": st.CurrentTier,
		"questions":    svc.Catalog.ClarifyingQuestions(pb.ID, initialCtx),
	}
	return jsonResult(response, false), nil
}

// HandlePolicy implements the adpilot/policy MCP tool.
func (svc *Service) HandlePolicy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	conversationID, _ := args["conversation_id"].(string)
	if conversationID == "" {
		return errorResult("conversation_id argument is required"), nil
	}

	st, res := svc.loadState(ctx, conversationID)
	if res != nil {
		return res, nil
	}

	pol := svc.Machine.CurrentPolicy(st)
	response := map[string]any{
		"playbook_id":      st.PlaybookID,
		"current_tier":     st.CurrentTier,
		"allowed_tools":    pol.AllowedTools,
		"max_tool_calls":   pol.MaxToolCalls,
		"dangerous_policy": pol.DangerousPolicy,
	}
	return jsonResult(response, false), nil
}

// HandleTransition implements the adpilot/transition MCP tool.
func (svc *Service) HandleTransition(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	conversationID, _ := args["conversation_id"].(string)
	if conversationID == "" {
		return errorResult("conversation_id argument is required"), nil
	}
	target, _ := args["target_tier"].(string)
	if target == "" {
		return errorResult("target_tier argument is required"), nil
	}

	st, res := svc.loadState(ctx, conversationID)
	if res != nil {
		return res, nil
	}

	data, _ := args["data"].(map[string]any)
	decision := svc.Machine.CanTransitionTo(st, target, data)
	if !decision.Allowed {
		return jsonResult(map[string]any{
			"allowed":      false,
			"reason":       decision.Reason,
			"current_tier": st.CurrentTier,
		}, true), nil
	}

	triggeredBy, _ := args["triggered_by"].(string)
	st = svc.Machine.TransitionTo(st, target, tierstate.TransitionContext{TriggeredBy: triggeredBy})
	if err := store.SaveState(ctx, svc.Store, conversationID, st); err != nil {
		return errorResult(fmt.Sprintf("save state: %s", err)), nil
	}

	pol := svc.Machine.CurrentPolicy(st)
	response := map[string]any{
		"allowed":          true,
		"reason":           decision.Reason,
		"current_tier":     st.CurrentTier,
		"completed_tiers":  st.CompletedTiers,
		"allowed_tools":    pol.AllowedTools,
		"max_tool_calls":   pol.MaxToolCalls,
		"dangerous_policy": pol.DangerousPolicy,
	}
	return jsonResult(response, false), nil
}

// HandleReport implements the adpilot/report MCP tool. Reported data is
// merged into the snapshot, then auto-escalation runs against the merged
// view. An escalation is committed immediately; the response carries the
// resulting tier either way, plus the next-step offers reachable from it.
func (svc *Service) HandleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	conversationID, _ := args["conversation_id"].(string)
	if conversationID == "" {
		return errorResult("conversation_id argument is required"), nil
	}
	data, _ := args["data"].(map[string]any)
	if len(data) == 0 {
		return errorResult("data argument is required"), nil
	}

	st, res := svc.loadState(ctx, conversationID)
	if res != nil {
		return res, nil
	}

	st = svc.Machine.SaveSnapshotData(st, data)

	esc := svc.Machine.CheckAutoEscalation(st, st.SnapshotData)
	if esc.ShouldEscalate {
		st = svc.Machine.TransitionTo(st, esc.TargetTier, tierstate.TransitionContext{
			Reason:      "auto_escalation",
			TriggeredBy: esc.Reason,
		})
	}

	if err := store.SaveState(ctx, svc.Store, conversationID, st); err != nil {
		return errorResult(fmt.Sprintf("save state: %s", err)), nil
	}

	response := map[string]any{
		"current_tier": st.CurrentTier,
		"escalated":    esc.ShouldEscalate,
		"next_steps":   svc.Machine.AvailableNextSteps(st, nil),
	}
	if esc.ShouldEscalate {
		response["escalation_reason"] = esc.Reason
	}
	return jsonResult(response, false), nil
}

// loadState resolves the conversation's state or the error result to
// return. Expired states are rejected, the caller has to start over.
func (svc *Service) loadState(ctx context.Context, conversationID string) (tierstate.TierState, *mcp.CallToolResult) {
	st, err := store.LoadState(ctx, svc.Store, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return tierstate.TierState{}, errorResult(fmt.Sprintf("no state for conversation %q", conversationID))
	}
	if err != nil {
		return tierstate.TierState{}, errorResult(fmt.Sprintf("load state: %s", err))
	}
	if svc.Machine.IsExpired(st) {
		return tierstate.TierState{}, errorResult(fmt.Sprintf("state for conversation %q has expired", conversationID))
	}
	return st, nil
}

func hasErrors(errs []*schema.ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Phase, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}

func jsonResult(v any, isErr bool) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}
}
