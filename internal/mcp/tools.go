package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chimera-protocol/chimera/apps/state/internal/app"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
	"github.com/chimera-protocol/chimera/apps/state/internal/privacy"
)

// Tools holds the tool handlers registered by NewServer.
type Tools struct {
	app *app.App
}

// --- Input types ---

type SwitchWorkspaceInput struct {
	Workspace string `json:"workspace" jsonschema:"Workspace id, or a name to match approximately"`
}

type SearchMemoriesInput struct {
	Query       string `json:"query" jsonschema:"Case-insensitive text matched against title, content and tags"`
	WorkspaceID string `json:"workspaceId,omitempty" jsonschema:"Workspace to search; defaults to the active workspace"`
	AllSpaces   bool   `json:"allWorkspaces,omitempty" jsonschema:"Search every workspace instead of one"`
	SortBy      string `json:"sortBy,omitempty" jsonschema:"recent, title or relevance (default recent)"`
}

type AddMemoryInput struct {
	WorkspaceID string   `json:"workspaceId,omitempty" jsonschema:"Target workspace; defaults to the active workspace"`
	Title       string   `json:"title" jsonschema:"Short title"`
	Content     string   `json:"content" jsonschema:"Memory body"`
	Tags        []string `json:"tags,omitempty" jsonschema:"Optional tags"`
}

type ListConversationsInput struct {
	WorkspaceID string `json:"workspaceId,omitempty" jsonschema:"Workspace to list; defaults to the active workspace"`
}

type SendMessageInput struct {
	ConversationID string `json:"conversationId" jsonschema:"Conversation to append to"`
	Content        string `json:"content" jsonschema:"Message text"`
	SkipReply      bool   `json:"skipReply,omitempty" jsonschema:"Do not request a reply from the model"`
}

type InjectMemoryInput struct {
	ConversationID string `json:"conversationId" jsonschema:"Conversation to attach the memory to"`
	MemoryID       string `json:"memoryId" jsonschema:"Memory to attach"`
}

// --- Output types ---

type workspaceSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Memories int    `json:"memories"`
}

type switchResult struct {
	TargetWorkspaceID string                 `json:"targetWorkspaceId"`
	Name              string                 `json:"name"`
	Transition        models.TransitionState `json:"transition"`
}

type memoryHit struct {
	ID          string   `json:"id"`
	WorkspaceID string   `json:"workspaceId"`
	Title       string   `json:"title"`
	Snippet     string   `json:"snippet"`
	Tags        []string `json:"tags"`
}

// --- Handlers ---

func (t *Tools) ListWorkspaces(_ context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, any, error) {
	active := t.app.Workspaces.ActiveWorkspaceID()
	out := []workspaceSummary{}
	for _, ws := range t.app.Workspaces.Workspaces() {
		out = append(out, workspaceSummary{
			ID:       ws.ID,
			Name:     ws.Name,
			Active:   ws.ID == active,
			Memories: len(t.app.Memories.MemoriesByWorkspace(ws.ID)),
		})
	}
	return toolJSON(out)
}

func (t *Tools) SwitchWorkspace(ctx context.Context, _ *mcpsdk.CallToolRequest, input SwitchWorkspaceInput) (*mcpsdk.CallToolResult, any, error) {
	if input.Workspace == "" {
		return toolError("Workspace is required"), nil, nil
	}
	ws, ok := t.app.Workspaces.WorkspaceByID(input.Workspace)
	if !ok {
		ws, ok = t.app.Selectors.FindWorkspace(input.Workspace)
	}
	if !ok {
		return toolError("No workspace matches %q", input.Workspace), nil, nil
	}

	if err := t.app.SwitchWorkspace(ctx, ws.ID); err != nil {
		return toolError("Failed to switch workspace: %v", err), nil, nil
	}
	return toolJSON(switchResult{
		TargetWorkspaceID: ws.ID,
		Name:              ws.Name,
		Transition:        t.app.Workspaces.Transition(),
	})
}

func (t *Tools) GetTransition(_ context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, any, error) {
	return toolJSON(t.app.Workspaces.Transition())
}

func (t *Tools) GetOverview(_ context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, any, error) {
	return toolJSON(t.app.Selectors.Overview())
}

func (t *Tools) SearchMemories(_ context.Context, _ *mcpsdk.CallToolRequest, input SearchMemoriesInput) (*mcpsdk.CallToolResult, any, error) {
	mode := models.SortMode(input.SortBy)
	if mode == "" {
		mode = models.SortRecent
	}
	if !mode.IsValid() {
		return toolError("Unknown sort mode %q", input.SortBy), nil, nil
	}

	wid := ""
	if !input.AllSpaces {
		wid = input.WorkspaceID
		if wid == "" {
			wid = t.app.Workspaces.ActiveWorkspaceID()
		}
		if _, ok := t.app.Workspaces.WorkspaceByID(wid); !ok {
			return toolError("Workspace %q not found", wid), nil, nil
		}
	}

	hits := []memoryHit{}
	for _, m := range t.app.Memories.SearchMemories(wid, input.Query, mode) {
		hits = append(hits, memoryHit{
			ID:          m.ID,
			WorkspaceID: m.WorkspaceID,
			Title:       m.Title,
			Snippet:     m.Snippet,
			Tags:        m.Tags,
		})
	}
	return toolJSON(hits)
}

func (t *Tools) AddMemory(_ context.Context, _ *mcpsdk.CallToolRequest, input AddMemoryInput) (*mcpsdk.CallToolResult, any, error) {
	wid := input.WorkspaceID
	if wid == "" {
		wid = t.app.Workspaces.ActiveWorkspaceID()
	}
	if _, ok := t.app.Workspaces.WorkspaceByID(wid); !ok {
		return toolError("Workspace %q not found", wid), nil, nil
	}

	if input.Content != "" && privacy.HasOnlyPrivateContent(input.Content) {
		return toolError("Memory content is entirely private; nothing stored"), nil, nil
	}

	mem, err := t.app.Memories.AddMemory(models.NewMemory{
		WorkspaceID: wid,
		Title:       input.Title,
		Content:     privacy.StripPrivateTags(input.Content),
		Tags:        input.Tags,
		Metadata:    map[string]string{"source": "mcp"},
	})
	if err != nil {
		return toolError("Failed to add memory: %v", err), nil, nil
	}
	mem.Embedding = nil
	return toolJSON(mem)
}

func (t *Tools) ListConversations(ctx context.Context, _ *mcpsdk.CallToolRequest, input ListConversationsInput) (*mcpsdk.CallToolResult, any, error) {
	wid := input.WorkspaceID
	if wid == "" {
		wid = t.app.Workspaces.ActiveWorkspaceID()
	}
	if err := t.app.Conversations.LoadConversations(ctx, wid); err != nil {
		return toolError("Failed to load conversations: %v", err), nil, nil
	}
	return toolJSON(t.app.Conversations.ConversationsByWorkspace(wid))
}

func (t *Tools) SendMessage(ctx context.Context, _ *mcpsdk.CallToolRequest, input SendMessageInput) (*mcpsdk.CallToolResult, any, error) {
	if input.ConversationID == "" || input.Content == "" {
		return toolError("conversationId and content are required"), nil, nil
	}
	if err := t.app.Conversations.SendMessage(ctx, input.ConversationID, input.Content, !input.SkipReply); err != nil {
		return toolError("Failed to send message: %v", err), nil, nil
	}
	c, _ := t.app.Conversations.ConversationByID(input.ConversationID)
	return toolJSON(c)
}

func (t *Tools) InjectMemory(ctx context.Context, _ *mcpsdk.CallToolRequest, input InjectMemoryInput) (*mcpsdk.CallToolResult, any, error) {
	if _, ok := t.app.Memories.MemoryByID(input.MemoryID); !ok {
		return toolError("Memory %q not found", input.MemoryID), nil, nil
	}
	if err := t.app.Conversations.InjectMemory(ctx, input.ConversationID, input.MemoryID); err != nil {
		return toolError("Failed to inject memory: %v", err), nil, nil
	}
	c, _ := t.app.Conversations.ConversationByID(input.ConversationID)
	return toolJSON(c.InjectedMemories)
}

func (t *Tools) ListModels(_ context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, any, error) {
	return toolJSON(t.app.Integrations.ConnectedModels())
}

// --- Helpers ---

func toolError(format string, args ...any) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcpsdk.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil, nil
}
