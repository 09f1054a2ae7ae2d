package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chimera-protocol/chimera/apps/state/internal/models"
	"github.com/chimera-protocol/chimera/apps/state/internal/store"
)

type ConversationHandler struct {
	convs *store.ConversationStore
}

func NewConversationHandler(convs *store.ConversationStore) *ConversationHandler {
	return &ConversationHandler{convs: convs}
}

type createConversationRequest struct {
	WorkspaceID string `json:"workspaceId"`
	ModelID     string `json:"modelId"`
	Title       string `json:"title"`
}

type sendMessageRequest struct {
	Content       string `json:"content"`
	GetAIResponse *bool  `json:"getAiResponse,omitempty"`
}

type activeConversationRequest struct {
	ID string `json:"id"`
}

type autoStoreRequest struct {
	Enabled bool `json:"enabled"`
}

// Create handles POST /conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	id, err := h.convs.CreateConversation(r.Context(), req.WorkspaceID, req.ModelID, req.Title)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	c, _ := h.convs.ConversationByID(id)
	writeJSON(w, http.StatusCreated, c)
}

// Get handles GET /conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.convs.ConversationByID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Update handles PATCH /conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var upd models.ConversationUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.convs.UpdateConversation(r.Context(), id, upd); err != nil {
		writeStoreError(w, err)
		return
	}
	c, _ := h.convs.ConversationByID(id)
	writeJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.convs.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Active handles GET /conversations/active
func (h *ConversationHandler) Active(w http.ResponseWriter, r *http.Request) {
	c, ok := h.convs.ActiveConversation()
	if !ok {
		writeError(w, http.StatusNotFound, "no active conversation")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SetActive handles PUT /conversations/active; an empty id clears it.
func (h *ConversationHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req activeConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.convs.SetActiveConversation(r.Context(), req.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	if req.ID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	c, _ := h.convs.ConversationByID(req.ID)
	writeJSON(w, http.StatusOK, c)
}

// SetAutoStore handles PUT /conversations/auto-store
func (h *ConversationHandler) SetAutoStore(w http.ResponseWriter, r *http.Request) {
	var req autoStoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	h.convs.SetAutoStore(req.Enabled)
	writeJSON(w, http.StatusOK, autoStoreRequest{Enabled: h.convs.AutoStore()})
}

// LoadMessages handles POST /conversations/{id}/messages/load
func (h *ConversationHandler) LoadMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.convs.LoadConversationMessages(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	c, _ := h.convs.ConversationByID(id)
	writeJSON(w, http.StatusOK, c.Messages)
}

// SendMessage handles POST /conversations/{id}/messages. An AI reply is
// requested unless getAiResponse is false.
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	want := req.GetAIResponse == nil || *req.GetAIResponse

	if err := h.convs.SendMessage(r.Context(), id, req.Content, want); err != nil {
		writeStoreError(w, err)
		return
	}
	c, _ := h.convs.ConversationByID(id)
	writeJSON(w, http.StatusCreated, c)
}

// Message handles GET /messages/{mid}
func (h *ConversationHandler) Message(w http.ResponseWriter, r *http.Request) {
	m, ok := h.convs.MessageByID(chi.URLParam(r, "mid"))
	if !ok {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Pin handles PUT /conversations/{id}/messages/{mid}/pin
func (h *ConversationHandler) Pin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, true)
}

// Unpin handles DELETE /conversations/{id}/messages/{mid}/pin
func (h *ConversationHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, false)
}

func (h *ConversationHandler) setPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	convID, msgID := chi.URLParam(r, "id"), chi.URLParam(r, "mid")
	var err error
	if pinned {
		err = h.convs.PinMessage(r.Context(), convID, msgID)
	} else {
		err = h.convs.UnpinMessage(r.Context(), convID, msgID)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	m, _ := h.convs.MessageByID(msgID)
	writeJSON(w, http.StatusOK, m)
}

// DeleteMessage handles DELETE /conversations/{id}/messages/{mid}
func (h *ConversationHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.convs.DeleteMessage(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "mid")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InjectMemory handles PUT /conversations/{id}/memories/{memID}
func (h *ConversationHandler) InjectMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.convs.InjectMemory(r.Context(), id, chi.URLParam(r, "memID")); err != nil {
		writeStoreError(w, err)
		return
	}
	c, _ := h.convs.ConversationByID(id)
	writeJSON(w, http.StatusOK, c.InjectedMemories)
}

// RemoveInjectedMemory handles DELETE /conversations/{id}/memories/{memID}
func (h *ConversationHandler) RemoveInjectedMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.convs.RemoveInjectedMemory(r.Context(), id, chi.URLParam(r, "memID")); err != nil {
		writeStoreError(w, err)
		return
	}
	c, _ := h.convs.ConversationByID(id)
	writeJSON(w, http.StatusOK, c.InjectedMemories)
}
