package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
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

func TestDefault(t *testing.T) {
	fx, err := Default()
	require.NoError(t, err)
	assert.Len(t, fx.Workspaces, 3)
	assert.Len(t, fx.Memories, 6)
	assert.Len(t, fx.Integrations, 3)
	assert.Len(t, fx.Conversations, 3)

	assert.Equal(t, time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC), fx.Workspaces[0].UpdatedAt)
	assert.Equal(t, models.ProviderOpenAI, fx.Integrations[0].Provider)
	require.NotNil(t, fx.Integrations[0].LastTested)
	assert.Nil(t, fx.Integrations[2].LastTested)
	assert.True(t, fx.Conversations[0].Messages[1].IsPinned)
}

func TestApply(t *testing.T) {
	fx, err := Default()
	require.NoError(t, err)

	vc := clock.NewVirtual(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	ws := store.NewWorkspaceStore(vc, store.DefaultTransitionTiming(), nil, nil, "user-1")
	ms := store.NewMemoryStore(embedding.Simulated{}, vc, nil, nil)
	is := store.NewIntegrationStore(probe.Simulated{}, vc, "user-1", nil, nil)
	local := conversationapi.NewLocal(vc, nil)

	fx.Apply(ws, ms, is, local)

	assert.Equal(t, "workspace-1", ws.ActiveWorkspaceID())
	assert.Len(t, ms.MemoriesByWorkspace("workspace-1"), 3)
	m, ok := ms.MemoryByID("memory-2")
	require.True(t, ok)
	assert.Equal(t, m.Content, m.Snippet)
	assert.Len(t, is.ConnectedModels(), 2)

	recs, err := local.ListConversations(context.Background(), "workspace-1")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"duplicate workspace", "workspaces:\n  - id: a\n  - id: a\n", "duplicate workspace"},
		{"missing memory id", "memories:\n  - title: x\n", "memory #0 has no id"},
		{"unknown provider", "integrations:\n  - id: i\n    provider: mistral\n    status: connected\n", "unknown provider"},
		{"duplicate provider", "integrations:\n  - {id: a, provider: openai, status: connected}\n  - {id: b, provider: openai, status: error}\n", "duplicate integration"},
		{"bad role", "conversations:\n  - id: c\n    messages:\n      - {id: m, role: robot}\n", "unknown role"},
		{"unknown field", "workspace:\n  - id: a\n", "field workspace not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workspaces:\n  - id: only\n    name: Solo\n"), 0o644))

	fx, err := Load(path)
	require.NoError(t, err)
	require.Len(t, fx.Workspaces, 1)
	assert.Equal(t, "Solo", fx.Workspaces[0].Name)

	empty, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Workspaces)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	def, err := Load("")
	require.NoError(t, err)
	assert.Len(t, def.Workspaces, 3)
}
