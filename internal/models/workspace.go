package models

import "time"

// Workspace is the top-level container for conversations and memories.
type Workspace struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	OwnerID     string         `json:"ownerId" yaml:"ownerId"`
	Members     []string       `json:"members" yaml:"members"`
	Stats       WorkspaceStats `json:"stats" yaml:"stats"`
	CreatedAt   time.Time      `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt" yaml:"updatedAt"`
}

// WorkspaceStats are the dashboard counters shown for a workspace.
type WorkspaceStats struct {
	TotalMemories      int       `json:"totalMemories" yaml:"totalMemories"`
	TotalEmbeddings    int       `json:"totalEmbeddings" yaml:"totalEmbeddings"`
	TotalConversations int       `json:"totalConversations" yaml:"totalConversations"`
	SystemLoad         float64   `json:"systemLoad" yaml:"systemLoad"`
	LastActivity       time.Time `json:"lastActivity" yaml:"lastActivity"`
}

// Clone returns a copy that shares no slices with w.
func (w Workspace) Clone() Workspace {
	out := w
	out.Members = cloneStrings(w.Members)
	return out
}

// CreateWorkspaceRequest is the payload for POST /workspaces.
type CreateWorkspaceRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=1000"`
}

// WorkspaceUpdate is a partial update; nil fields are left unchanged.
type WorkspaceUpdate struct {
	Name        *string         `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=1000"`
	Members     *[]string       `json:"members,omitempty"`
	Stats       *WorkspaceStats `json:"stats,omitempty"`
}

// TransitionState is the overlay state of an in-flight workspace switch.
type TransitionState struct {
	IsTransitioning     bool    `json:"isTransitioning"`
	Progress            float64 `json:"transitionProgress"`
	PreviousWorkspaceID string  `json:"previousWorkspaceId,omitempty"`
	TargetWorkspaceID   string  `json:"targetWorkspaceId,omitempty"`
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
