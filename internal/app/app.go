// Package app wires the state core together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/chimera-protocol/chimera/apps/state/internal/clock"
	"github.com/chimera-protocol/chimera/apps/state/internal/config"
	"github.com/chimera-protocol/chimera/apps/state/internal/conversationapi"
	"github.com/chimera-protocol/chimera/apps/state/internal/embedding"
	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
	"github.com/chimera-protocol/chimera/apps/state/internal/metrics"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
	"github.com/chimera-protocol/chimera/apps/state/internal/probe"
	"github.com/chimera-protocol/chimera/apps/state/internal/seed"
	"github.com/chimera-protocol/chimera/apps/state/internal/selectors"
	"github.com/chimera-protocol/chimera/apps/state/internal/store"
)

// App owns every store and collaborator of one state core instance.
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	Metrics *metrics.Collector
	Clock   clock.Scheduler
	DB      *store.DB

	Workspaces    *store.WorkspaceStore
	Conversations *store.ConversationStore
	Memories      *store.MemoryStore
	Integrations  *store.IntegrationStore
	Settings      *store.SettingsStore
	Selectors     selectors.Stores

	// ConversationBackend is set when conversations are kept in process.
	ConversationBackend *conversationapi.Local
	ConversationClient  *conversationapi.Client
	Ollama              *embedding.OllamaClient
}

// Options override collaborators, mostly for tests.
type Options struct {
	Clock   clock.Scheduler
	Metrics *metrics.Collector
	Prober  store.Prober
	// SkipSeed starts with empty stores.
	SkipSeed bool
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}
	a := &App{
		Config:  cfg,
		Log:     log,
		Metrics: opts.Metrics,
		Clock:   opts.Clock,
	}
	if a.Clock == nil {
		a.Clock = clock.Real{}
	}
	if a.Metrics == nil {
		a.Metrics = metrics.NewCollector("chimera")
	}

	if cfg.Settings.DBPath != "" {
		db, err := store.Open(cfg.Settings.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open settings database: %w", err)
		}
		a.DB = db
	}

	settings, err := store.NewSettingsStore(a.DB, cfg.Settings.Namespace, log, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Settings = settings

	timing := store.TransitionTiming{Duration: cfg.Transition.Duration, Interval: cfg.Transition.Interval}
	a.Workspaces = store.NewWorkspaceStore(a.Clock, timing, log, a.Metrics, cfg.UserID)
	a.Memories = store.NewMemoryStore(a.embedder(), a.Clock, log, a.Metrics)

	prober := opts.Prober
	if prober == nil {
		prober = a.prober()
	}
	a.Integrations = store.NewIntegrationStore(prober, a.Clock, cfg.UserID, log, a.Metrics)

	var api store.ConversationAPI
	if cfg.ConversationAPI.URL == "" {
		a.ConversationBackend = conversationapi.NewLocal(a.Clock, nil)
		api = a.ConversationBackend
	} else {
		bc := cfg.ConversationAPI.Breaker
		a.ConversationClient = conversationapi.NewClient(conversationapi.Config{
			BaseURL: cfg.ConversationAPI.URL,
			Token:   cfg.ConversationAPI.Token,
			Timeout: cfg.ConversationAPI.Timeout,
			Breaker: conversationapi.BreakerConfig{
				MaxRequests:      bc.MaxRequests,
				Interval:         bc.Interval,
				Timeout:          bc.Timeout,
				FailureThreshold: bc.FailureThreshold,
				MinRequests:      bc.MinRequests,
			},
		}, log)
		api = a.ConversationClient
	}
	a.Conversations = store.NewConversationStore(api, a.Clock, log, a.Metrics)
	a.Conversations.SetAutoStore(settings.Settings().MemoryRetention.AutoStore)

	a.Selectors = selectors.Stores{
		Workspaces:    a.Workspaces,
		Conversations: a.Conversations,
		Memories:      a.Memories,
		Integrations:  a.Integrations,
	}

	if !opts.SkipSeed {
		if err := a.seed(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	log.Info("state core ready",
		"workspaces", len(a.Workspaces.Workspaces()),
		"memories", len(a.Memories.Memories()),
		"conversation_api", conversationMode(cfg),
		"embedding", cfg.Embedding.Provider,
		"probe", cfg.Probe.Mode,
	)
	return a, nil
}

func conversationMode(cfg *config.Config) string {
	if cfg.ConversationAPI.URL == "" {
		return "in-process"
	}
	return cfg.ConversationAPI.URL
}

func (a *App) embedder() store.Embedder {
	cfg := a.Config.Embedding
	var e store.Embedder
	switch cfg.Provider {
	case "ollama":
		a.Ollama = embedding.NewOllamaClient(cfg.OllamaURL, cfg.Model)
		e = a.Ollama
	default:
		e = embedding.Simulated{Delay: cfg.Delay}
	}
	if cfg.Cache && a.DB != nil {
		e = embedding.NewCachedEmbedder(e, store.NewEmbeddingCacheStore(a.DB), cfg.Provider+":"+cfg.Model, a.Log)
	}
	return e
}

func (a *App) prober() store.Prober {
	cfg := a.Config.Probe
	if cfg.Mode == "http" {
		return probe.NewHTTPProber(cfg.Timeout, nil)
	}
	return probe.Simulated{Delay: cfg.Delay, SuccessRate: cfg.SuccessRate}
}

// seed loads the fixture and, for the in-process backend, the conversations of
// the active workspace.
func (a *App) seed(ctx context.Context) error {
	fx, err := seed.Load(a.Config.SeedFile)
	if err != nil {
		return err
	}
	var conv seed.ConversationSeeder
	if a.ConversationBackend != nil {
		conv = a.ConversationBackend
	}
	fx.Apply(a.Workspaces, a.Memories, a.Integrations, conv)

	if id := a.Workspaces.ActiveWorkspaceID(); id != "" {
		if err := a.Conversations.LoadConversations(ctx, id); err != nil {
			a.Log.Warn("initial conversation load failed", "workspace_id", id, "error", err)
		}
	}
	return nil
}

// SwitchWorkspace starts the animated switch and preloads the target's
// conversations so they are in place when the switch commits.
func (a *App) SwitchWorkspace(ctx context.Context, id string) error {
	if err := a.Workspaces.SetActiveWorkspace(id); err != nil {
		return err
	}
	if err := a.Conversations.LoadConversations(ctx, id); err != nil {
		a.Log.Warn("preload conversations failed", "workspace_id", id, "error", err)
	}
	return nil
}

// UpdateMemoryRetention persists the retention settings and mirrors autoStore
// onto the conversation store.
func (a *App) UpdateMemoryRetention(autoStore bool, period string) error {
	if err := a.Settings.UpdateMemoryRetention(autoStore, period); err != nil {
		return err
	}
	a.Conversations.SetAutoStore(autoStore)
	return nil
}

// DeleteAccount resets settings and the stores' session state.
func (a *App) DeleteAccount() error {
	if err := a.Settings.DeleteAccount(); err != nil {
		return err
	}
	a.Conversations.SetAutoStore(models.DefaultSettings().MemoryRetention.AutoStore)
	return nil
}

// ApplyConfig picks up the hot-reloadable parts of a new configuration.
func (a *App) ApplyConfig(cfg *config.Config) {
	if cfg.Log.Level != a.Log.Level() {
		if err := a.Log.SetLevel(cfg.Log.Level); err != nil {
			a.Log.Warn("ignoring log level from reloaded config", "error", err)
			return
		}
		a.Log.Info("log level changed", "level", cfg.Log.Level)
	}
}

func (a *App) Close() error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
