package selectors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-protocol/chimera/apps/state/internal/clock"
	"github.com/chimera-protocol/chimera/apps/state/internal/conversationapi"
	"github.com/chimera-protocol/chimera/apps/state/internal/embedding"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
	"github.com/chimera-protocol/chimera/apps/state/internal/probe"
	"github.com/chimera-protocol/chimera/apps/state/internal/store"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStores(t *testing.T) (Stores, *clock.Virtual) {
	t.Helper()
	vc := clock.NewVirtual(epoch)

	backend := conversationapi.NewLocal(vc, nil)
	backend.Seed(models.Conversation{
		ID: "c1", WorkspaceID: "w1", ModelID: "gpt-4o", Title: "Design review",
		Messages: []models.Message{
			{ID: "m1", ConversationID: "c1", Role: models.RoleUser, Content: "hi", Timestamp: epoch, IsPinned: true},
			{ID: "m2", ConversationID: "c1", Role: models.RoleAssistant, Content: "hello", Timestamp: epoch},
		},
		InjectedMemories: []string{"mem1", "gone"},
		CreatedAt:        epoch, UpdatedAt: epoch,
	})
	backend.Seed(models.Conversation{ID: "c2", WorkspaceID: "w-deleted", Title: "Stray", CreatedAt: epoch, UpdatedAt: epoch})

	s := Stores{
		Workspaces:    store.NewWorkspaceStore(vc, store.DefaultTransitionTiming(), nil, nil, "u1"),
		Conversations: store.NewConversationStore(backend, vc, nil, nil),
		Memories:      store.NewMemoryStore(embedding.Simulated{}, vc, nil, nil),
		Integrations:  store.NewIntegrationStore(probe.Simulated{SuccessRate: 1}, vc, "u1", nil, nil),
	}
	s.Workspaces.Load([]models.Workspace{
		{ID: "w1", Name: "Research Lab"},
		{ID: "w2", Name: "Product Strategy"},
	})
	s.Memories.Load([]models.Memory{
		{ID: "mem1", WorkspaceID: "w1", Title: "Alpha", Content: "first", Embedding: []float32{1}, UpdatedAt: epoch},
		{ID: "mem2", WorkspaceID: "w1", Title: "Beta", Content: "second", UpdatedAt: epoch.Add(time.Hour)},
		{ID: "mem3", WorkspaceID: "w-deleted", Title: "Orphan", Content: "x"},
	})
	s.Integrations.Load([]models.Integration{
		{ID: "i1", UserID: "u1", Provider: models.ProviderAnthropic, APIKey: "k", Status: models.StatusConnected},
		{ID: "i2", UserID: "u1", Provider: models.ProviderOpenAI, Status: models.StatusDisconnected},
	})

	ctx := context.Background()
	require.NoError(t, s.Conversations.LoadConversations(ctx, "w1"))
	require.NoError(t, s.Conversations.LoadConversations(ctx, "w-deleted"))
	require.NoError(t, s.Conversations.SetActiveConversation(ctx, "c1"))
	return s, vc
}

func TestOverview(t *testing.T) {
	s, _ := newTestStores(t)

	snap := s.Overview()
	require.NotNil(t, snap.ActiveWorkspace)
	assert.Equal(t, "w1", snap.ActiveWorkspace.ID)
	assert.Equal(t, "c1", snap.ActiveConversationID)
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, 2, snap.Conversations[0].MessageCount)
	assert.True(t, snap.Conversations[0].HistoryLoaded)

	require.Len(t, snap.Memories, 2)
	assert.Equal(t, "mem2", snap.Memories[0].ID, "recent sort puts the newest first")

	require.Len(t, snap.ConnectedModels, 1)
	assert.Equal(t, models.ProviderAnthropic, snap.ConnectedModels[0].Provider)

	assert.Equal(t, Stats{
		WorkspaceID: "w1", Conversations: 1, Messages: 2, PinnedMessages: 1,
		Memories: 2, EmbeddedMemories: 1, InjectedMemories: 2,
	}, snap.Stats)
}

func TestOverview_FollowsCommittedWorkspace(t *testing.T) {
	s, vc := newTestStores(t)

	require.NoError(t, s.Workspaces.SetActiveWorkspace("w2"))
	vc.Advance(25 * 50 * time.Millisecond)

	snap := s.Overview()
	assert.Equal(t, "w1", snap.ActiveWorkspace.ID)
	assert.True(t, snap.Transition.IsTransitioning)
	assert.Equal(t, "w2", snap.Transition.TargetWorkspaceID)

	vc.Advance(time.Second * 5)
	snap = s.Overview()
	assert.Equal(t, "w2", snap.ActiveWorkspace.ID)
	assert.False(t, snap.Transition.IsTransitioning)
	assert.Empty(t, snap.Conversations)
	assert.Empty(t, snap.Memories)
}

func TestOverview_NoWorkspaces(t *testing.T) {
	vc := clock.NewVirtual(epoch)
	s := Stores{
		Workspaces:    store.NewWorkspaceStore(vc, store.DefaultTransitionTiming(), nil, nil, "u1"),
		Conversations: store.NewConversationStore(conversationapi.NewLocal(vc, nil), vc, nil, nil),
		Memories:      store.NewMemoryStore(embedding.Simulated{}, vc, nil, nil),
		Integrations:  store.NewIntegrationStore(probe.Simulated{}, vc, "u1", nil, nil),
	}
	snap := s.Overview()
	assert.Nil(t, snap.ActiveWorkspace)
	assert.Empty(t, snap.Conversations)
	assert.Empty(t, snap.ConnectedModels)
}

func TestOrphans(t *testing.T) {
	s, _ := newTestStores(t)

	convs := s.OrphanedConversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "c2", convs[0].ID)

	mems := s.OrphanedMemories()
	require.Len(t, mems, 1)
	assert.Equal(t, "mem3", mems[0].ID)

	assert.Equal(t, map[string][]string{"c1": {"gone"}}, s.DanglingInjections())

	// Deleting a workspace leaves its entities in place.
	require.NoError(t, s.Workspaces.DeleteWorkspace("w2"))
	require.NoError(t, s.Workspaces.DeleteWorkspace("w1"))
	assert.Len(t, s.OrphanedConversations(), 2)
	assert.Len(t, s.OrphanedMemories(), 3)
}

func TestFindWorkspace(t *testing.T) {
	ws := []models.Workspace{
		{ID: "w1", Name: "Research Lab"},
		{ID: "w2", Name: "Product Strategy"},
		{ID: "w3", Name: "research lab"},
	}

	tests := []struct {
		name   string
		query  string
		wantID string
		found  bool
	}{
		{"exact ignores case", "RESEARCH LAB", "w1", true},
		{"surrounding space", "  product strategy ", "w2", true},
		{"typo within limit", "Prodcut Stratgy", "w2", true},
		{"too far", "Marketing", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindWorkspace(ws, tt.query)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}
