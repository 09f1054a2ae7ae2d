package api

import (
	"net/http"

	"github.com/chimera-protocol/chimera/apps/state/internal/models"
	"github.com/chimera-protocol/chimera/apps/state/internal/selectors"
)

type OverviewHandler struct {
	sel selectors.Stores
}

func NewOverviewHandler(sel selectors.Stores) *OverviewHandler {
	return &OverviewHandler{sel: sel}
}

// IntegrityReport lists records whose workspace or memory references no
// longer resolve.
type IntegrityReport struct {
	OrphanedConversations []models.Conversation `json:"orphanedConversations"`
	OrphanedMemories      []models.Memory       `json:"orphanedMemories"`
	DanglingInjections    map[string][]string   `json:"danglingInjections"`
}

// Overview handles GET /overview
func (h *OverviewHandler) Overview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sel.Overview())
}

// Integrity handles GET /overview/integrity
func (h *OverviewHandler) Integrity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, IntegrityReport{
		OrphanedConversations: h.sel.OrphanedConversations(),
		OrphanedMemories:      h.sel.OrphanedMemories(),
		DanglingInjections:    h.sel.DanglingInjections(),
	})
}
