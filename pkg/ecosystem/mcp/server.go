package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with adpilot tools registered.
func NewServer(version string, svc *Service) *server.MCPServer {
	s := server.NewMCPServer(
		"adpilot",
		version,
		server.WithToolCapabilities(true),
	)

	// Register tools
	s.AddTool(
		mcp.NewTool("adpilot/validate",
			mcp.WithDescription("Validate a playbook YAML file or a directory of playbooks"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the playbook YAML file or playbook directory")),
		),
		svc.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("adpilot/schema",
			mcp.WithDescription("Export the playbook JSON Schema"),
		),
		svc.HandleSchema,
	)

	s.AddTool(
		mcp.NewTool("adpilot/start",
			mcp.WithDescription("Start a conversation: resolve the intent to a playbook and create initial tier state"),
			mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation identifier")),
			mcp.WithString("intent", mcp.Required(), mcp.Description("User intent to resolve against the catalog")),
			mcp.WithObject("context", mcp.Description("Initial context data to seed into the snapshot (optional)")),
		),
		svc.HandleStart,
	)

	s.AddTool(
		mcp.NewTool("adpilot/policy",
			mcp.WithDescription("Resolve the tool policy for the conversation's current tier"),
			mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation identifier")),
		),
		svc.HandlePolicy,
	)

	s.AddTool(
		mcp.NewTool("adpilot/transition",
			mcp.WithDescription("Request a tier transition (checked against the target tier's entry conditions)"),
			mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation identifier")),
			mcp.WithString("target_tier", mcp.Required(), mcp.Description("Target tier: snapshot, drilldown or actions")),
			mcp.WithObject("data", mcp.Description("Analysis data for entry condition evaluation (optional)")),
			mcp.WithString("triggered_by", mcp.Description("Identifier of the offer or actor triggering the transition (optional)")),
		),
		svc.HandleTransition,
	)

	s.AddTool(
		mcp.NewTool("adpilot/report",
			mcp.WithDescription("Report fresh analysis data: merges it into the snapshot, checks auto-escalation and lists available next steps"),
			mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation identifier")),
			mcp.WithObject("data", mcp.Required(), mcp.Description("Analysis data, e.g. spend, leads, cpl, targetCpl")),
		),
		svc.HandleReport,
	)

	return s
}
