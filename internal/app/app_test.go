package app

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-protocol/chimera/apps/state/internal/clock"
	"github.com/chimera-protocol/chimera/apps/state/internal/config"
	"github.com/chimera-protocol/chimera/apps/state/internal/conversationapi"
	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
	"github.com/chimera-protocol/chimera/apps/state/internal/probe"
)

var epoch = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Port:       8742,
		UserID:     "user-1",
		Log:        config.LogConfig{Level: "info"},
		Settings:   config.SettingsConfig{DBPath: ":memory:", Namespace: "chimera-settings-storage"},
		Transition: config.TransitionConfig{Duration: 3 * time.Second, Interval: 50 * time.Millisecond},
		Embedding:  config.EmbeddingConfig{Provider: "simulated", Cache: true, Model: "sim", Parallelism: 2},
		Probe:      config.ProbeConfig{Mode: "simulated", SuccessRate: 1},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, *clock.Virtual) {
	t.Helper()
	vc := clock.NewVirtual(epoch)
	a, err := New(context.Background(), cfg, nil, Options{Clock: vc, Prober: probe.Simulated{SuccessRate: 1}})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, vc
}

func TestNew_SeedsStores(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	assert.NotNil(t, a.ConversationBackend)
	assert.Nil(t, a.ConversationClient)
	assert.Equal(t, "workspace-1", a.Workspaces.ActiveWorkspaceID())
	assert.Len(t, a.Memories.Memories(), 6)
	assert.Len(t, a.Conversations.ConversationsByWorkspace("workspace-1"), 2)
	assert.Len(t, a.Integrations.ConnectedModels(), 2)
	assert.True(t, a.Conversations.AutoStore())
}

func TestSwitchWorkspace(t *testing.T) {
	a, vc := newTestApp(t, testConfig())
	ctx := context.Background()

	require.NoError(t, a.SwitchWorkspace(ctx, "workspace-2"))
	assert.Len(t, a.Conversations.ConversationsByWorkspace("workspace-2"), 1, "preloaded before commit")
	assert.Equal(t, "workspace-1", a.Workspaces.ActiveWorkspaceID())

	vc.Advance(61 * 50 * time.Millisecond)
	assert.Equal(t, "workspace-2", a.Workspaces.ActiveWorkspaceID())
	assert.Equal(t, "workspace-2", a.Selectors.Overview().ActiveWorkspace.ID)

	assert.Error(t, a.SwitchWorkspace(ctx, "nope"))
}

func TestRetentionMirrorsAutoStore(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	require.NoError(t, a.UpdateMemoryRetention(false, "30-days"))
	assert.False(t, a.Conversations.AutoStore())
	assert.Equal(t, "30-days", a.Settings.Settings().MemoryRetention.RetentionPeriod)

	require.NoError(t, a.DeleteAccount())
	assert.True(t, a.Conversations.AutoStore())
	assert.Equal(t, "indefinite-84", a.Settings.Settings().MemoryRetention.RetentionPeriod)
}

func TestReEmbedThroughCache(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	n, err := a.Memories.ReEmbedWorkspace(context.Background(), "workspace-1", a.Config.Embedding.Parallelism)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var count int
	require.NoError(t, a.DB.QueryRow(`SELECT COUNT(*) FROM embedding_cache`).Scan(&count))
	assert.Equal(t, 3, count)
}

func TestRemoteConversationAPI(t *testing.T) {
	remote := conversationapi.NewLocal(clock.NewVirtual(epoch), nil)
	srv := httptest.NewServer(conversationapi.NewHandler(remote))
	defer srv.Close()

	cfg := testConfig()
	cfg.ConversationAPI = config.ConversationAPIConfig{URL: srv.URL, Timeout: time.Second}
	a, _ := newTestApp(t, cfg)

	assert.Nil(t, a.ConversationBackend)
	require.NotNil(t, a.ConversationClient)
	assert.Empty(t, a.Conversations.Conversations(), "fixture conversations stay local")

	id, err := a.Conversations.CreateConversation(context.Background(), "workspace-1", "model-claude", "")
	require.NoError(t, err)
	recs, err := remote.ListConversations(context.Background(), "workspace-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)
	assert.Equal(t, "New Conversation", recs[0].Title)
}

func TestApplyConfig(t *testing.T) {
	log, err := logger.New("development", "info")
	require.NoError(t, err)
	a, err := New(context.Background(), testConfig(), log, Options{Clock: clock.NewVirtual(epoch), SkipSeed: true})
	require.NoError(t, err)
	defer a.Close()
	assert.Empty(t, a.Workspaces.Workspaces())

	next := testConfig()
	next.Log.Level = "debug"
	a.ApplyConfig(next)
	assert.Equal(t, "debug", log.Level())

	next.Log.Level = "loud"
	a.ApplyConfig(next)
	assert.Equal(t, "debug", log.Level())
}
