package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chimera-protocol/chimera/apps/state/internal/app"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
)

type WorkspaceHandler struct {
	app *app.App
}

func NewWorkspaceHandler(a *app.App) *WorkspaceHandler {
	return &WorkspaceHandler{app: a}
}

type activeWorkspaceRequest struct {
	ID string `json:"id"`
}

type activeWorkspaceResponse struct {
	ActiveWorkspaceID string                 `json:"activeWorkspaceId"`
	Transition        models.TransitionState `json:"transition"`
}

type progressRequest struct {
	Progress float64 `json:"progress"`
}

type reembedResponse struct {
	ReEmbedded int `json:"reEmbedded"`
}

// List handles GET /workspaces
func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Workspaces.Workspaces())
}

// Create handles POST /workspaces
func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	ws, err := h.app.Workspaces.CreateWorkspace(req.Name, req.Description)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

// Get handles GET /workspaces/{id}
func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.app.Workspaces.WorkspaceByID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// Find handles GET /workspaces/find?name=
func (h *WorkspaceHandler) Find(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	ws, ok := h.app.Selectors.FindWorkspace(name)
	if !ok {
		writeError(w, http.StatusNotFound, "no workspace matches "+name)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// Update handles PATCH /workspaces/{id}
func (h *WorkspaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var upd models.WorkspaceUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ws, err := h.app.Workspaces.UpdateWorkspace(chi.URLParam(r, "id"), upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// Delete handles DELETE /workspaces/{id}
func (h *WorkspaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Workspaces.DeleteWorkspace(chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Active handles GET /workspaces/active
func (h *WorkspaceHandler) Active(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, activeWorkspaceResponse{
		ActiveWorkspaceID: h.app.Workspaces.ActiveWorkspaceID(),
		Transition:        h.app.Workspaces.Transition(),
	})
}

// SetActive handles PUT /workspaces/active. The switch is animated, so the
// response still reports the previous workspace as active.
func (h *WorkspaceHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req activeWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.app.SwitchWorkspace(r.Context(), req.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, activeWorkspaceResponse{
		ActiveWorkspaceID: h.app.Workspaces.ActiveWorkspaceID(),
		Transition:        h.app.Workspaces.Transition(),
	})
}

// Transition handles GET /workspaces/transition
func (h *WorkspaceHandler) Transition(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Workspaces.Transition())
}

// StartTransition handles POST /workspaces/transition/start
func (h *WorkspaceHandler) StartTransition(w http.ResponseWriter, r *http.Request) {
	h.app.Workspaces.StartTransition()
	writeJSON(w, http.StatusOK, h.app.Workspaces.Transition())
}

// UpdateTransitionProgress handles PUT /workspaces/transition/progress
func (h *WorkspaceHandler) UpdateTransitionProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.app.Workspaces.UpdateTransitionProgress(req.Progress)
	writeJSON(w, http.StatusOK, h.app.Workspaces.Transition())
}

// CompleteTransition handles POST /workspaces/transition/complete
func (h *WorkspaceHandler) CompleteTransition(w http.ResponseWriter, r *http.Request) {
	h.app.Workspaces.CompleteTransition()
	writeJSON(w, http.StatusOK, h.app.Workspaces.Transition())
}

// Stats handles GET /workspaces/{id}/stats
func (h *WorkspaceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.app.Workspaces.WorkspaceByID(id); !ok {
		writeError(w, http.StatusNotFound, "workspace not found")
		return
	}
	writeJSON(w, http.StatusOK, h.app.Selectors.LiveStats(id))
}

// Conversations handles GET /workspaces/{id}/conversations
func (h *WorkspaceHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Conversations.ConversationsByWorkspace(chi.URLParam(r, "id")))
}

// LoadConversations handles POST /workspaces/{id}/conversations/load
func (h *WorkspaceHandler) LoadConversations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.app.Conversations.LoadConversations(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Conversations.ConversationsByWorkspace(id))
}

// Memories handles GET /workspaces/{id}/memories, applying the current search
// query and sort mode.
func (h *WorkspaceHandler) Memories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Memories.FilteredMemories(chi.URLParam(r, "id")))
}

// ReEmbed handles POST /workspaces/{id}/memories/reembed
func (h *WorkspaceHandler) ReEmbed(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Memories.ReEmbedWorkspace(r.Context(), chi.URLParam(r, "id"), h.app.Config.Embedding.Parallelism)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reembedResponse{ReEmbedded: n})
}
