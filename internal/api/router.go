package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chimera-protocol/chimera/apps/state/internal/app"
)

// NewRouter creates the Chi router with all routes and middleware. mcp may be
// nil, in which case /mcp is not mounted.
func NewRouter(a *app.App, mcp http.Handler, apiKey string) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Tracing)
	r.Use(Metrics(a.Metrics))
	r.Use(Logger(a.Log))
	r.Use(Recovery(a.Log))

	healthH := NewHealthHandler(a)
	workspaceH := NewWorkspaceHandler(a)
	conversationH := NewConversationHandler(a.Conversations)
	memoryH := NewMemoryHandler(a.Memories)
	integrationH := NewIntegrationHandler(a.Integrations)
	settingsH := NewSettingsHandler(a)
	overviewH := NewOverviewHandler(a.Selectors)

	// Unauthenticated routes
	r.Get("/health", healthH.Health)
	r.Handle("/metrics", a.Metrics.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		r.Get("/overview", overviewH.Overview)
		r.Get("/overview/integrity", overviewH.Integrity)

		r.Route("/workspaces", func(r chi.Router) {
			r.Get("/", workspaceH.List)
			r.Post("/", workspaceH.Create)
			r.Get("/find", workspaceH.Find)
			r.Get("/active", workspaceH.Active)
			r.Put("/active", workspaceH.SetActive)
			r.Get("/transition", workspaceH.Transition)
			r.Post("/transition/start", workspaceH.StartTransition)
			r.Put("/transition/progress", workspaceH.UpdateTransitionProgress)
			r.Post("/transition/complete", workspaceH.CompleteTransition)
			r.Get("/{id}", workspaceH.Get)
			r.Patch("/{id}", workspaceH.Update)
			r.Delete("/{id}", workspaceH.Delete)
			r.Get("/{id}/stats", workspaceH.Stats)
			r.Get("/{id}/conversations", workspaceH.Conversations)
			r.Post("/{id}/conversations/load", workspaceH.LoadConversations)
			r.Get("/{id}/memories", workspaceH.Memories)
			r.Post("/{id}/memories/reembed", workspaceH.ReEmbed)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationH.Create)
			r.Get("/active", conversationH.Active)
			r.Put("/active", conversationH.SetActive)
			r.Put("/auto-store", conversationH.SetAutoStore)
			r.Get("/{id}", conversationH.Get)
			r.Patch("/{id}", conversationH.Update)
			r.Delete("/{id}", conversationH.Delete)
			r.Post("/{id}/messages", conversationH.SendMessage)
			r.Post("/{id}/messages/load", conversationH.LoadMessages)
			r.Delete("/{id}/messages/{mid}", conversationH.DeleteMessage)
			r.Put("/{id}/messages/{mid}/pin", conversationH.Pin)
			r.Delete("/{id}/messages/{mid}/pin", conversationH.Unpin)
			r.Put("/{id}/memories/{memID}", conversationH.InjectMemory)
			r.Delete("/{id}/memories/{memID}", conversationH.RemoveInjectedMemory)
		})
		r.Get("/messages/{mid}", conversationH.Message)

		r.Route("/memories", func(r chi.Router) {
			r.Get("/", memoryH.List)
			r.Post("/", memoryH.Add)
			r.Get("/query", memoryH.Query)
			r.Put("/query", memoryH.SetQuery)
			r.Get("/selected", memoryH.Selected)
			r.Put("/selected", memoryH.Select)
			r.Get("/{id}", memoryH.Get)
			r.Patch("/{id}", memoryH.Update)
			r.Delete("/{id}", memoryH.Delete)
			r.Post("/{id}/reembed", memoryH.ReEmbed)
		})

		r.Route("/integrations", func(r chi.Router) {
			r.Get("/", integrationH.List)
			r.Get("/models", integrationH.Models)
			r.Get("/{provider}", integrationH.Get)
			r.Put("/{provider}/key", integrationH.SaveKey)
			r.Post("/{provider}/test", integrationH.Test)
			r.Post("/{provider}/disable", integrationH.Disable)
			r.Put("/{provider}/status", integrationH.SetStatus)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", settingsH.Get)
			r.Put("/profile", settingsH.UpdateProfile)
			r.Put("/retention", settingsH.UpdateRetention)
			r.Delete("/account", settingsH.DeleteAccount)
			r.Get("/export", settingsH.Export)
		})

		if mcp != nil {
			r.Handle("/mcp", mcp)
			r.Handle("/mcp/*", mcp)
		}
	})

	return r
}
