package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chimera-protocol/chimera/apps/state/internal/clock"
	"github.com/chimera-protocol/chimera/apps/state/internal/errs"
	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
)

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	vec, _ := args.Get(0).([]float32)
	return vec, args.Error(1)
}

func newTestMemoryStore(t *testing.T) (*MemoryStore, *mockEmbedder, *clock.Virtual) {
	t.Helper()
	e := &mockEmbedder{}
	vc := clock.NewVirtual(epoch)
	return NewMemoryStore(e, vc, logger.NewNop(), nil), e, vc
}

func ptr[T any](v T) *T { return &v }

func TestMemoryStore_AddMemory(t *testing.T) {
	s, _, _ := newTestMemoryStore(t)

	m, err := s.AddMemory(models.NewMemory{
		WorkspaceID: "w1",
		Title:       "Auth notes",
		Content:     strings.Repeat("x", 200),
		Tags:        []string{"auth"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, 1, m.Version)
	assert.Equal(t, strings.Repeat("x", 150)+"...", m.Snippet)
	assert.Equal(t, epoch, m.CreatedAt)

	_, err = s.AddMemory(models.NewMemory{WorkspaceID: "w1"})
	assert.ErrorIs(t, err, errs.ErrInvalid)
	_, err = s.AddMemory(models.NewMemory{Title: "t"})
	assert.ErrorIs(t, err, errs.ErrInvalid)
	assert.Len(t, s.Memories(), 1)
}

func TestMemoryStore_UpdateRecomputesSnippetAndVersion(t *testing.T) {
	s, _, vc := newTestMemoryStore(t)
	s.Load([]models.Memory{{ID: "m1", WorkspaceID: "w1", Title: "t", Content: strings.Repeat("A", 200), Version: 1}})

	vc.Advance(time.Hour)
	m, err := s.UpdateMemory("m1", models.MemoryUpdate{Content: ptr(strings.Repeat("B", 10))})
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBBBBB", m.Snippet)
	assert.Equal(t, 2, m.Version)
	assert.Equal(t, epoch.Add(time.Hour), m.UpdatedAt)

	m, err = s.UpdateMemory("m1", models.MemoryUpdate{Metadata: ptr(map[string]string{"source": "slack"})})
	require.NoError(t, err)
	assert.Equal(t, 3, m.Version, "metadata-only edits still bump the version")

	m, err = s.UpdateMemory("m1", models.MemoryUpdate{})
	require.NoError(t, err)
	assert.Equal(t, 4, m.Version)

	m, err = s.UpdateMemory("m1", models.MemoryUpdate{Content: ptr(strings.Repeat("C", 150))})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("C", 150), m.Snippet)

	m, err = s.UpdateMemory("m1", models.MemoryUpdate{Content: ptr("")})
	require.NoError(t, err)
	assert.Equal(t, "", m.Snippet)

	_, err = s.UpdateMemory("missing", models.MemoryUpdate{})
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = s.UpdateMemory("m1", models.MemoryUpdate{Title: ptr("")})
	assert.ErrorIs(t, err, errs.ErrInvalid)
}

func TestMemoryStore_DeleteClearsSelection(t *testing.T) {
	s, _, _ := newTestMemoryStore(t)
	s.Load([]models.Memory{{ID: "m1", WorkspaceID: "w1", Title: "a"}, {ID: "m2", WorkspaceID: "w1", Title: "b"}})

	require.NoError(t, s.SetSelectedMemory("m1"))
	sel, ok := s.SelectedMemory()
	require.True(t, ok)
	assert.Equal(t, "m1", sel.ID)

	require.NoError(t, s.DeleteMemory("m1"))
	_, ok = s.SelectedMemory()
	assert.False(t, ok)
	assert.ErrorIs(t, s.DeleteMemory("m1"), errs.ErrNotFound)
	assert.ErrorIs(t, s.SetSelectedMemory("m1"), errs.ErrNotFound)
	require.NoError(t, s.SetSelectedMemory(""))
}

func TestMemoryStore_FilteredMemories(t *testing.T) {
	s, _, _ := newTestMemoryStore(t)
	s.Load([]models.Memory{
		{ID: "m1", WorkspaceID: "w1", Title: "beta", Content: "Kubernetes rollout", Tags: []string{"infra"}, UpdatedAt: epoch.Add(1 * time.Hour)},
		{ID: "m2", WorkspaceID: "w1", Title: "Alpha", Content: "design review", Tags: []string{"Product"}, UpdatedAt: epoch.Add(3 * time.Hour)},
		{ID: "m3", WorkspaceID: "w1", Title: "gamma", Content: "postgres tuning", Tags: []string{"db"}, UpdatedAt: epoch.Add(2 * time.Hour)},
		{ID: "m4", WorkspaceID: "w2", Title: "delta", Content: "kubernetes", UpdatedAt: epoch.Add(4 * time.Hour)},
	})

	ids := func(ms []models.Memory) []string {
		out := []string{}
		for _, m := range ms {
			out = append(out, m.ID)
		}
		return out
	}

	assert.Equal(t, []string{"m2", "m3", "m1"}, ids(s.FilteredMemories("w1")))

	require.NoError(t, s.SetSortBy(models.SortTitle))
	assert.Equal(t, []string{"m2", "m1", "m3"}, ids(s.FilteredMemories("w1")))

	require.NoError(t, s.SetSortBy(models.SortRelevance))
	assert.Equal(t, []string{"m2", "m3", "m1"}, ids(s.FilteredMemories("w1")), "relevance orders like recent")

	s.SetSearchQuery("KUBER")
	assert.Equal(t, []string{"m1"}, ids(s.FilteredMemories("w1")))
	s.SetSearchQuery("product")
	assert.Equal(t, []string{"m2"}, ids(s.FilteredMemories("w1")), "tags match case-insensitively")
	s.SetSearchQuery("nothing matches")
	assert.Empty(t, s.FilteredMemories("w1"))

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(s.MemoriesByWorkspace("w1")), "sorting must not reorder the collection")
	assert.ErrorIs(t, s.SetSortBy("popular"), errs.ErrInvalid)
	assert.Equal(t, models.SortRelevance, s.SortBy())
	assert.Equal(t, "nothing matches", s.SearchQuery())
}

func TestMemoryStore_SearchMemoriesLeavesQueryAlone(t *testing.T) {
	s, _, _ := newTestMemoryStore(t)
	s.Load([]models.Memory{
		{ID: "m1", WorkspaceID: "w1", Title: "Kubernetes", UpdatedAt: epoch},
		{ID: "m2", WorkspaceID: "w2", Title: "kubectl tips", UpdatedAt: epoch.Add(time.Hour)},
		{ID: "m3", WorkspaceID: "w2", Title: "pricing", UpdatedAt: epoch},
	})
	s.SetSearchQuery("pricing")

	got := s.SearchMemories("", "KUB", models.SortTitle)
	require.Len(t, got, 2)
	assert.Equal(t, "m2", got[0].ID)
	assert.Equal(t, "m1", got[1].ID)

	assert.Len(t, s.SearchMemories("w2", "kub", models.SortRecent), 1)
	assert.Equal(t, "pricing", s.SearchQuery())
}

func TestMemoryStore_ReEmbedMemory(t *testing.T) {
	s, e, vc := newTestMemoryStore(t)
	s.Load([]models.Memory{{ID: "m1", WorkspaceID: "w1", Title: "t", Content: "hello", Version: 3}})
	e.On("Embed", mock.Anything, "hello").Return([]float32{0.1, 0.2}, nil).Once()

	vc.Advance(time.Minute)
	require.NoError(t, s.ReEmbedMemory(context.Background(), "m1"))

	m, _ := s.MemoryByID("m1")
	assert.Equal(t, 4, m.Version)
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, "hello", m.Snippet)
	assert.Equal(t, []float32{0.1, 0.2}, m.Embedding)
	assert.Equal(t, epoch.Add(time.Minute), m.UpdatedAt)

	e.On("Embed", mock.Anything, "hello").Return(nil, errors.New("ollama down")).Once()
	assert.ErrorIs(t, s.ReEmbedMemory(context.Background(), "m1"), errs.ErrExternal)
	m, _ = s.MemoryByID("m1")
	assert.Equal(t, 4, m.Version, "failed re-embed leaves state unchanged")

	assert.ErrorIs(t, s.ReEmbedMemory(context.Background(), "zzz"), errs.ErrNotFound)
}

func TestMemoryStore_ReEmbedDropsVectorForChangedContent(t *testing.T) {
	s, e, _ := newTestMemoryStore(t)
	s.Load([]models.Memory{{ID: "m1", WorkspaceID: "w1", Title: "t", Content: "old", Version: 1}})

	entered := make(chan struct{})
	release := make(chan struct{})
	e.On("Embed", mock.Anything, "old").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]float32{9}, nil).Once()

	done := make(chan error, 1)
	go func() { done <- s.ReEmbedMemory(context.Background(), "m1") }()

	<-entered
	_, err := s.UpdateMemory("m1", models.MemoryUpdate{Content: ptr("new")})
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	m, _ := s.MemoryByID("m1")
	assert.Equal(t, 3, m.Version)
	assert.Equal(t, "new", m.Content)
	assert.Equal(t, "new", m.Snippet)
	assert.Nil(t, m.Embedding)
}

func TestMemoryStore_ConcurrentVersionBumpsAreNotLost(t *testing.T) {
	s, e, _ := newTestMemoryStore(t)
	s.Load([]models.Memory{{ID: "m1", WorkspaceID: "w1", Title: "t", Content: "c", Version: 1}})
	e.On("Embed", mock.Anything, mock.Anything).Return([]float32{1}, nil)

	const reEmbeds, updates = 25, 15
	var wg sync.WaitGroup
	for i := 0; i < reEmbeds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.ReEmbedMemory(context.Background(), "m1"))
		}()
	}
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateMemory("m1", models.MemoryUpdate{Tags: ptr([]string{"x"})})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	m, _ := s.MemoryByID("m1")
	assert.Equal(t, 1+reEmbeds+updates, m.Version)
}

func TestMemoryStore_ReEmbedWorkspace(t *testing.T) {
	s, e, _ := newTestMemoryStore(t)
	s.Load([]models.Memory{
		{ID: "m1", WorkspaceID: "w1", Title: "a", Content: "a"},
		{ID: "m2", WorkspaceID: "w1", Title: "b", Content: "b"},
		{ID: "m3", WorkspaceID: "w2", Title: "c", Content: "c"},
	})
	e.On("Embed", mock.Anything, mock.Anything).Return([]float32{1, 1}, nil)

	n, err := s.ReEmbedWorkspace(context.Background(), "w1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	m3, _ := s.MemoryByID("m3")
	assert.Equal(t, 1, m3.Version)
	m1, _ := s.MemoryByID("m1")
	assert.Equal(t, 2, m1.Version)

	n, err = s.ReEmbedWorkspace(context.Background(), "empty", 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_SelectorsReturnCopies(t *testing.T) {
	s, _, _ := newTestMemoryStore(t)
	s.Load([]models.Memory{{ID: "m1", WorkspaceID: "w1", Title: "a", Tags: []string{"one"}}})

	got := s.Memories()
	got[0].Tags[0] = "mutated"
	m, _ := s.MemoryByID("m1")
	assert.Equal(t, []string{"one"}, m.Tags)
}
