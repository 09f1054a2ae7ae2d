package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chimera-protocol/chimera/apps/state/internal/models"
	"github.com/chimera-protocol/chimera/apps/state/internal/store"
)

// IntegrationHandler serves provider integrations. Keys never leave the
// process unredacted.
type IntegrationHandler struct {
	integrations *store.IntegrationStore
}

func NewIntegrationHandler(is *store.IntegrationStore) *IntegrationHandler {
	return &IntegrationHandler{integrations: is}
}

type testConnectionResponse struct {
	Connected   bool               `json:"connected"`
	Integration models.Integration `json:"integration"`
}

func redactAll(in []models.Integration) []models.Integration {
	out := make([]models.Integration, len(in))
	for i, it := range in {
		out[i] = it.Redacted()
	}
	return out
}

func providerParam(r *http.Request) (models.Provider, bool) {
	p := models.Provider(chi.URLParam(r, "provider"))
	return p, p.IsValid()
}

// List handles GET /integrations
func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, redactAll(h.integrations.Integrations()))
}

// Models handles GET /integrations/models
func (h *IntegrationHandler) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.integrations.ConnectedModels())
}

// Get handles GET /integrations/{provider}
func (h *IntegrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := providerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}
	in, ok := h.integrations.IntegrationByProvider(p)
	if !ok {
		writeError(w, http.StatusNotFound, "integration not found")
		return
	}
	writeJSON(w, http.StatusOK, in.Redacted())
}

// SaveKey handles PUT /integrations/{provider}/key. An empty key is not an
// error; the integration reports it through its status.
func (h *IntegrationHandler) SaveKey(w http.ResponseWriter, r *http.Request) {
	p, ok := providerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}
	var req models.SaveKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.integrations.SaveAPIKey(p, req.APIKey); err != nil {
		writeStoreError(w, err)
		return
	}
	in, _ := h.integrations.IntegrationByProvider(p)
	writeJSON(w, http.StatusOK, in.Redacted())
}

// Test handles POST /integrations/{provider}/test
func (h *IntegrationHandler) Test(w http.ResponseWriter, r *http.Request) {
	p, ok := providerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}
	connected, err := h.integrations.TestConnection(r.Context(), p)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	in, ok := h.integrations.IntegrationByProvider(p)
	if !ok {
		writeError(w, http.StatusNotFound, "integration not found")
		return
	}
	writeJSON(w, http.StatusOK, testConnectionResponse{Connected: connected, Integration: in.Redacted()})
}

// Disable handles POST /integrations/{provider}/disable
func (h *IntegrationHandler) Disable(w http.ResponseWriter, r *http.Request) {
	p, ok := providerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}
	if err := h.integrations.DisableIntegration(p); err != nil {
		writeStoreError(w, err)
		return
	}
	in, _ := h.integrations.IntegrationByProvider(p)
	writeJSON(w, http.StatusOK, in.Redacted())
}

// SetStatus handles PUT /integrations/{provider}/status
func (h *IntegrationHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := providerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}
	var req models.StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := store.Validate("update integration status", req); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := h.integrations.UpdateIntegrationStatus(p, req.Status, req.ErrorMessage); err != nil {
		writeStoreError(w, err)
		return
	}
	in, _ := h.integrations.IntegrationByProvider(p)
	writeJSON(w, http.StatusOK, in.Redacted())
}
