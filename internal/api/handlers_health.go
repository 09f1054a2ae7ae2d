package api

import (
	"context"
	"net/http"
	"time"

	"github.com/chimera-protocol/chimera/apps/state/internal/app"
)

type ServiceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status          string        `json:"status"`
	DB              *ServiceCheck `json:"db,omitempty"`
	Ollama          *ServiceCheck `json:"ollama,omitempty"`
	ConversationAPI *ServiceCheck `json:"conversationApi,omitempty"`
	Workspaces      int           `json:"workspaces"`
	Memories        int           `json:"memories"`
}

type HealthHandler struct {
	app *app.App
}

func NewHealthHandler(a *app.App) *HealthHandler {
	return &HealthHandler{app: a}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:     "ok",
		Workspaces: len(h.app.Workspaces.Workspaces()),
		Memories:   len(h.app.Memories.Memories()),
	}
	degrade := func(err error) *ServiceCheck {
		if err != nil {
			resp.Status = "degraded"
			return &ServiceCheck{Status: "error", Message: err.Error()}
		}
		return &ServiceCheck{Status: "ok"}
	}

	if h.app.DB != nil {
		resp.DB = degrade(h.app.DB.PingContext(ctx))
	}
	if h.app.Ollama != nil {
		resp.Ollama = degrade(h.app.Ollama.HealthCheck(ctx))
	}
	if c := h.app.ConversationClient; c != nil {
		// An open breaker means recent calls failed; report it without probing.
		state := c.BreakerState()
		check := &ServiceCheck{Status: "ok", Message: "breaker " + state}
		if state == "open" {
			check.Status = "error"
			resp.Status = "degraded"
		}
		resp.ConversationAPI = check
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
