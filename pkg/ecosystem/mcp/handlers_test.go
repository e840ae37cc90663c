package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/optiad/adpilot/pkg/catalog"
	"github.com/optiad/adpilot/pkg/schema"
	"github.com/optiad/adpilot/pkg/store/inmem"
	"github.com/optiad/adpilot/pkg/tierstate"
)

func testService() *Service {
	pb := &schema.Playbook{
		ID:      "ads-optimizer",
		Name:    "Ads Optimizer",
		Domain:  "ads",
		Intents: []string{"why_expensive_leads"},
		Tiers: map[string]*schema.TierPolicy{
			schema.TierSnapshot: {
				AllowedTools: []string{"ads.overview"},
			},
			schema.TierDrilldown: {
				AllowedTools: []string{"ads.overview", "ads.breakdown"},
				EnterIf:      []string{"user_chose_drilldown", "isHighCPL"},
			},
			schema.TierActions: {
				AllowedTools:    []string{"ads.pause_campaign"},
				DangerousPolicy: schema.DangerousRequireApproval,
				EnterIf:         []string{"user_confirmed_action"},
			},
		},
	}
	pb.Normalize()

	cat := catalog.New([]*schema.Playbook{pb}, nil, nil)
	return &Service{
		Catalog: cat,
		Machine: tierstate.NewMachine(cat, nil, nil),
		Store:   inmem.New(),
	}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("expected result content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return tc.Text
}

// Missing path argument is reported as a tool error, not a Go error.
func TestHandleValidate_MissingPath(t *testing.T) {
	svc := testService()

	result, err := svc.HandleValidate(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected error for missing path")
	}
}

func TestHandleSchema(t *testing.T) {
	svc := testService()

	result, err := svc.HandleSchema(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Error("expected success for schema export")
	}
	if !strings.Contains(resultText(t, result), "playbook-v0") {
		t.Error("expected playbook schema id in output")
	}
}

// Start resolves the intent, persists the initial state and reports the
// snapshot tier.
func TestHandleStart(t *testing.T) {
	svc := testService()

	result, err := svc.HandleStart(context.Background(), callRequest(map[string]any{
		"conversation_id": "conv-1",
		"intent":          "why_expensive_leads",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, result))
	}

	var response map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &response); err != nil {
		t.Fatal(err)
	}
	if response["playbook_id"] != "ads-optimizer" {
		t.Errorf("playbook_id = %v, want ads-optimizer", response["playbook_id"])
	}
	if response["current_tier"] != schema.TierSnapshot {
		t.Errorf("current_tier = %v, want snapshot", response["current_tier"])
	}
}

func TestHandleStart_UnknownIntent(t *testing.T) {
	svc := testService()

	result, err := svc.HandleStart(context.Background(), callRequest(map[string]any{
		"conversation_id": "conv-1",
		"intent":          "order_pizza",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected error for unknown intent")
	}
}

// Policy for a fresh conversation is the snapshot tier policy.
func TestHandlePolicy(t *testing.T) {
	svc := testService()
	ctx := context.Background()

	if _, err := svc.HandleStart(ctx, callRequest(map[string]any{
		"conversation_id": "conv-1",
		"intent":          "why_expensive_leads",
	})); err != nil {
		t.Fatal(err)
	}

	result, err := svc.HandlePolicy(ctx, callRequest(map[string]any{"conversation_id": "conv-1"}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, result))
	}

	var response map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &response); err != nil {
		t.Fatal(err)
	}
	if response["current_tier"] != schema.TierSnapshot {
		t.Errorf("current_tier = %v, want snapshot", response["current_tier"])
	}
	if response["dangerous_policy"] != schema.DangerousBlock {
		t.Errorf("dangerous_policy = %v, want block", response["dangerous_policy"])
	}
}

func TestHandlePolicy_UnknownConversation(t *testing.T) {
	svc := testService()

	result, err := svc.HandlePolicy(context.Background(), callRequest(map[string]any{
		"conversation_id": "missing",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected error for unknown conversation")
	}
}

// A transition backed by a satisfied entry condition commits and reports the
// new tier's policy; an unbacked one is denied without touching the state.
func TestHandleTransition(t *testing.T) {
	svc := testService()
	ctx := context.Background()

	if _, err := svc.HandleStart(ctx, callRequest(map[string]any{
		"conversation_id": "conv-1",
		"intent":          "why_expensive_leads",
	})); err != nil {
		t.Fatal(err)
	}

	denied, err := svc.HandleTransition(ctx, callRequest(map[string]any{
		"conversation_id": "conv-1",
		"target_tier":     schema.TierDrilldown,
		"data":            map[string]any{"cpl": 10.0, "targetCpl": 30.0},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !denied.IsError {
		t.Error("expected denial with no satisfied condition")
	}

	allowed, err := svc.HandleTransition(ctx, callRequest(map[string]any{
		"conversation_id": "conv-1",
		"target_tier":     schema.TierDrilldown,
		"data":            map[string]any{"cpl": 50.0, "targetCpl": 30.0},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if allowed.IsError {
		t.Fatalf("unexpected denial: %s", resultText(t, allowed))
	}

	var response map[string]any
	if err := json.Unmarshal([]byte(resultText(t, allowed)), &response); err != nil {
		t.Fatal(err)
	}
	if response["current_tier"] != schema.TierDrilldown {
		t.Errorf("current_tier = %v, want drilldown", response["current_tier"])
	}
}

// Reported data that satisfies a next-tier condition escalates the
// conversation in the same call.
func TestHandleReport_AutoEscalates(t *testing.T) {
	svc := testService()
	ctx := context.Background()

	if _, err := svc.HandleStart(ctx, callRequest(map[string]any{
		"conversation_id": "conv-1",
		"intent":          "why_expensive_leads",
	})); err != nil {
		t.Fatal(err)
	}

	result, err := svc.HandleReport(ctx, callRequest(map[string]any{
		"conversation_id": "conv-1",
		"data":            map[string]any{"cpl": 100.0, "targetCpl": 30.0},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, result))
	}

	var response map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &response); err != nil {
		t.Fatal(err)
	}
	if response["escalated"] != true {
		t.Error("expected auto-escalation to drilldown")
	}
	if response["current_tier"] != schema.TierDrilldown {
		t.Errorf("current_tier = %v, want drilldown", response["current_tier"])
	}
	if response["escalation_reason"] != "isHighCPL" {
		t.Errorf("escalation_reason = %v, want isHighCPL", response["escalation_reason"])
	}
}
