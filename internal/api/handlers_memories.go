package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chimera-protocol/chimera/apps/state/internal/models"
	"github.com/chimera-protocol/chimera/apps/state/internal/store"
)

type MemoryHandler struct {
	mems *store.MemoryStore
}

func NewMemoryHandler(mems *store.MemoryStore) *MemoryHandler {
	return &MemoryHandler{mems: mems}
}

type queryState struct {
	Query  string          `json:"query"`
	SortBy models.SortMode `json:"sortBy"`
}

type selectMemoryRequest struct {
	ID string `json:"id"`
}

// List handles GET /memories; workspace_id narrows to one workspace.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	if wid := r.URL.Query().Get("workspace_id"); wid != "" {
		writeJSON(w, http.StatusOK, h.mems.MemoriesByWorkspace(wid))
		return
	}
	writeJSON(w, http.StatusOK, h.mems.Memories())
}

// Add handles POST /memories
func (h *MemoryHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req models.NewMemory
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	mem, err := h.mems.AddMemory(req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mem)
}

// Get handles GET /memories/{id}
func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	mem, ok := h.mems.MemoryByID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

// Update handles PATCH /memories/{id}
func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.MemoryUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	mem, err := h.mems.UpdateMemory(chi.URLParam(r, "id"), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

// Delete handles DELETE /memories/{id}
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.mems.DeleteMemory(chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReEmbed handles POST /memories/{id}/reembed
func (h *MemoryHandler) ReEmbed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.mems.ReEmbedMemory(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	mem, _ := h.mems.MemoryByID(id)
	writeJSON(w, http.StatusOK, mem)
}

// Query handles GET /memories/query
func (h *MemoryHandler) Query(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, queryState{Query: h.mems.SearchQuery(), SortBy: h.mems.SortBy()})
}

// SetQuery handles PUT /memories/query. Either field may be omitted.
func (h *MemoryHandler) SetQuery(w http.ResponseWriter, r *http.Request) {
	var req models.MemoryQuery
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SortBy != nil {
		if err := h.mems.SetSortBy(*req.SortBy); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	if req.Query != nil {
		h.mems.SetSearchQuery(*req.Query)
	}
	writeJSON(w, http.StatusOK, queryState{Query: h.mems.SearchQuery(), SortBy: h.mems.SortBy()})
}

// Selected handles GET /memories/selected
func (h *MemoryHandler) Selected(w http.ResponseWriter, r *http.Request) {
	mem, ok := h.mems.SelectedMemory()
	if !ok {
		writeError(w, http.StatusNotFound, "no memory selected")
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

// Select handles PUT /memories/selected; an empty id clears the selection.
func (h *MemoryHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.mems.SetSelectedMemory(req.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
