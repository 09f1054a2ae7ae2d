package api

import (
	"bytes"
	"net/http"

	"github.com/chimera-protocol/chimera/apps/state/internal/app"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
	"github.com/chimera-protocol/chimera/apps/state/internal/store"
)

type SettingsHandler struct {
	app *app.App
}

func NewSettingsHandler(a *app.App) *SettingsHandler {
	return &SettingsHandler{app: a}
}

// Get handles GET /settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Settings.Settings())
}

// UpdateProfile handles PUT /settings/profile
func (h *SettingsHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.Profile
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.app.Settings.UpdateProfile(req.Name, req.Email); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Settings.Settings())
}

// UpdateRetention handles PUT /settings/retention
func (h *SettingsHandler) UpdateRetention(w http.ResponseWriter, r *http.Request) {
	var req models.MemoryRetention
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.app.UpdateMemoryRetention(req.AutoStore, req.RetentionPeriod); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Settings.Settings())
}

// DeleteAccount handles DELETE /settings/account
func (h *SettingsHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.app.DeleteAccount(); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Settings.Settings())
}

// Export handles GET /settings/export?format=json|yaml as a download.
func (h *SettingsHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := store.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = store.FormatJSON
	}

	var buf bytes.Buffer
	if err := h.app.Settings.Export(&buf, format); err != nil {
		writeStoreError(w, err)
		return
	}

	contentType := "application/json"
	if format == store.FormatYAML {
		contentType = "application/yaml"
	}
	name := store.ExportFileName(h.app.Clock.Now(), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
