package conversationapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chimera-protocol/chimera/apps/state/internal/errs"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
	"github.com/chimera-protocol/chimera/apps/state/internal/store"
)

type createRequest struct {
	WorkspaceID string `json:"workspaceId"`
	Title       string `json:"title"`
	ModelID     string `json:"modelId"`
}

type sendRequest struct {
	Content       string `json:"content"`
	GetAIResponse bool   `json:"getAiResponse"`
}

type injectRequest struct {
	MemoryID string `json:"memoryId"`
}

type errorBody struct {
	Error string `json:"error"`
}

// NewHandler exposes backend over the REST contract the Client speaks.
func NewHandler(backend store.ConversationAPI) http.Handler {
	h := &handler{backend: backend}
	r := chi.NewRouter()
	r.Get("/workspaces/{wid}/conversations", h.list)
	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/messages", h.send)
		r.Patch("/{id}/messages/{mid}", h.updateMessage)
		r.Delete("/{id}/messages/{mid}", h.deleteMessage)
		r.Post("/{id}/memories", h.inject)
		r.Delete("/{id}/memories/{memID}", h.removeInjected)
	})
	return r
}

type handler struct {
	backend store.ConversationAPI
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	recs, err := h.backend.ListConversations(r.Context(), chi.URLParam(r, "wid"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, models.ConversationList{Conversations: recs})
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.backend.CreateConversation(r.Context(), req.WorkspaceID, req.Title, req.ModelID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, rec)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.backend.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, rec)
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	var upd models.ConversationUpdate
	if !decode(w, r, &upd) {
		return
	}
	rec, err := h.backend.UpdateConversation(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, rec)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.backend.SendMessage(r.Context(), chi.URLParam(r, "id"), req.Content, req.GetAIResponse)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, res)
}

func (h *handler) updateMessage(w http.ResponseWriter, r *http.Request) {
	var upd models.MessageUpdate
	if !decode(w, r, &upd) {
		return
	}
	rec, err := h.backend.UpdateMessage(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "mid"), upd)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, rec)
}

func (h *handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.DeleteMessage(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "mid")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) inject(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if !decode(w, r, &req) {
		return
	}
	if req.MemoryID == "" {
		respondError(w, errs.Invalid("inject memory", "memoryId is required"))
		return
	}
	if err := h.backend.InjectMemory(r.Context(), chi.URLParam(r, "id"), req.MemoryID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) removeInjected(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.RemoveInjectedMemory(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "memID")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respond(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	var e *errs.Error
	msg := err.Error()
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	respond(w, status, errorBody{Error: msg})
}
