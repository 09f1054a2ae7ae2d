// Package mcp exposes the state core to MCP clients as a set of tools.
package mcp

import (
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chimera-protocol/chimera/apps/state/internal/app"
)

const serverName = "chimera-state"

// NewServer creates an MCP server with every state tool registered.
func NewServer(a *app.App, version string) *mcpsdk.Server {
	t := &Tools{app: a}

	srv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    serverName,
		Version: version,
	}, nil)

	// Workspaces
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "list_workspaces",
		Description: "List all workspaces with their memory counts and which one is active",
	}, t.ListWorkspaces)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name: "switch_workspace",
		Description: "Switch the active workspace by id or approximate name. " +
			"The switch is animated; poll get_transition until isTransitioning is false.",
	}, t.SwitchWorkspace)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "get_transition",
		Description: "Report progress of an in-flight workspace switch",
	}, t.GetTransition)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "get_overview",
		Description: "Snapshot of the active workspace, its conversations, filtered memories and connected models",
	}, t.GetOverview)

	// Memories
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "search_memories",
		Description: "Search memory titles, content and tags. Searches the active workspace unless one is given.",
	}, t.SearchMemories)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "add_memory",
		Description: "Store a new memory in a workspace (defaults to the active one)",
	}, t.AddMemory)

	// Conversations
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "list_conversations",
		Description: "List conversations of a workspace (defaults to the active one)",
	}, t.ListConversations)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "send_message",
		Description: "Append a user message to a conversation and optionally request the model's reply",
	}, t.SendMessage)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "inject_memory",
		Description: "Attach a memory to a conversation's context",
	}, t.InjectMemory)

	// Integrations
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "list_models",
		Description: "List the cognitive models whose provider integration is connected",
	}, t.ListModels)

	return srv
}

// HTTPHandler serves srv over the streamable HTTP transport.
func HTTPHandler(srv *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return srv
	}, nil)
}
