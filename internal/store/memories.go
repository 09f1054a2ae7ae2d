package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chimera-protocol/chimera/apps/state/internal/clock"
	"github.com/chimera-protocol/chimera/apps/state/internal/errs"
	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
	"github.com/chimera-protocol/chimera/apps/state/internal/metrics"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
)

// Embedder turns memory content into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MemoryStore owns the memory collection plus the list view's query state.
type MemoryStore struct {
	mu       sync.Mutex
	embedder Embedder
	clock    clock.Scheduler
	log      *logger.Logger
	metrics  *metrics.Collector

	memories    []models.Memory
	searchQuery string
	sortBy      models.SortMode
	selectedID  string
}

func NewMemoryStore(embedder Embedder, sched clock.Scheduler, log *logger.Logger, m *metrics.Collector) *MemoryStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &MemoryStore{
		embedder: embedder,
		clock:    sched,
		log:      log.With("store", "memory"),
		metrics:  m,
		sortBy:   models.SortRecent,
	}
}

// Load replaces the collection, typically with seed data. Snippets are
// recomputed and a zero version becomes 1.
func (s *MemoryStore) Load(memories []models.Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memories = make([]models.Memory, 0, len(memories))
	for _, m := range memories {
		m = m.Clone()
		m.Snippet = models.Snippet(m.Content)
		if m.Version < 1 {
			m.Version = 1
		}
		if m.Tags == nil {
			m.Tags = []string{}
		}
		s.memories = append(s.memories, m)
	}
	s.selectedID = ""
}

// AddMemory stores a new memory at version 1.
func (s *MemoryStore) AddMemory(in models.NewMemory) (models.Memory, error) {
	if err := Validate("add memory", in); err != nil {
		return models.Memory{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	m := models.Memory{
		ID:          uuid.New().String(),
		WorkspaceID: in.WorkspaceID,
		Title:       in.Title,
		Content:     in.Content,
		Snippet:     models.Snippet(in.Content),
		Tags:        append([]string{}, in.Tags...),
		Metadata:    in.Metadata,
		Embedding:   in.Embedding,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	m = m.Clone()
	s.memories = append(s.memories, m)

	s.metrics.RecordMutation("memory", "add")
	s.log.Debug("memory added", "memory_id", m.ID, "workspace_id", m.WorkspaceID)
	return m.Clone(), nil
}

// UpdateMemory merges upd, recomputes the snippet and bumps the version by
// exactly one, whichever fields changed.
func (s *MemoryStore) UpdateMemory(id string, upd models.MemoryUpdate) (models.Memory, error) {
	if err := Validate("update memory", upd); err != nil {
		return models.Memory{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return models.Memory{}, errs.NotFound("update memory", id)
	}
	m := &s.memories[i]
	if upd.WorkspaceID != nil {
		m.WorkspaceID = *upd.WorkspaceID
	}
	if upd.Title != nil {
		m.Title = *upd.Title
	}
	if upd.Content != nil {
		m.Content = *upd.Content
	}
	if upd.Tags != nil {
		m.Tags = append([]string{}, (*upd.Tags)...)
	}
	if upd.Metadata != nil {
		md := make(map[string]string, len(*upd.Metadata))
		for k, v := range *upd.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	m.Snippet = models.Snippet(m.Content)
	m.Version++
	m.UpdatedAt = s.clock.Now()

	s.metrics.RecordMutation("memory", "update")
	return m.Clone(), nil
}

// DeleteMemory removes id and clears the selection if it pointed there.
func (s *MemoryStore) DeleteMemory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return errs.NotFound("delete memory", id)
	}
	s.memories = append(s.memories[:i], s.memories[i+1:]...)
	if s.selectedID == id {
		s.selectedID = ""
	}

	s.metrics.RecordMutation("memory", "delete")
	s.log.Debug("memory deleted", "memory_id", id)
	return nil
}

func (s *MemoryStore) SetSearchQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchQuery = q
}

func (s *MemoryStore) SetSortBy(mode models.SortMode) error {
	if !mode.IsValid() {
		return errs.Invalid("set sort", "sortBy must be one of: recent title relevance")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortBy = mode
	return nil
}

// SetSelectedMemory selects id; "" clears the selection.
func (s *MemoryStore) SetSelectedMemory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" && s.indexLocked(id) < 0 {
		return errs.NotFound("select memory", id)
	}
	s.selectedID = id
	return nil
}

// ReEmbedMemory recomputes the embedding of id. The embedder runs outside the
// lock; the commit re-reads the latest memory, bumps version and updatedAt,
// and only stores the vector if the content did not change meanwhile.
func (s *MemoryStore) ReEmbedMemory(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return errs.NotFound("re-embed memory", id)
	}
	content := s.memories[i].Content
	s.mu.Unlock()

	var vec []float32
	if s.embedder != nil {
		started := time.Now()
		var err error
		vec, err = s.embedder.Embed(ctx, content)
		s.metrics.RecordExternalCall("embedder", "embed", started, err)
		if err != nil {
			s.log.Error("re-embed failed", "memory_id", id, "error", err)
			return errs.External("re-embed memory", id, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i = s.indexLocked(id)
	if i < 0 {
		return errs.NotFound("re-embed memory", id)
	}
	m := &s.memories[i]
	if m.Content == content && vec != nil {
		m.Embedding = append([]float32(nil), vec...)
	}
	m.Version++
	m.UpdatedAt = s.clock.Now()

	s.metrics.RecordMutation("memory", "re_embed")
	s.log.Debug("memory re-embedded", "memory_id", id, "version", m.Version)
	return nil
}

// ReEmbedWorkspace re-embeds every memory of workspaceID with at most
// parallelism calls in flight. Memories deleted while the batch runs are
// skipped. It returns how many memories were re-embedded.
func (s *MemoryStore) ReEmbedWorkspace(ctx context.Context, workspaceID string, parallelism int) (int, error) {
	if parallelism < 1 {
		parallelism = 1
	}

	s.mu.Lock()
	var ids []string
	for _, m := range s.memories {
		if m.WorkspaceID == workspaceID {
			ids = append(ids, m.ID)
		}
	}
	s.mu.Unlock()

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, id := range ids {
		g.Go(func() error {
			err := s.ReEmbedMemory(gctx, id)
			if errors.Is(err, errs.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			done.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(done.Load()), err
}

// --- Selectors ---

func (s *MemoryStore) Memories() []models.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMemories(s.memories, func(models.Memory) bool { return true })
}

func (s *MemoryStore) MemoriesByWorkspace(workspaceID string) []models.Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMemories(s.memories, func(m models.Memory) bool { return m.WorkspaceID == workspaceID })
}

func (s *MemoryStore) MemoryByID(id string) (models.Memory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.Memory{}, false
	}
	return s.memories[i].Clone(), true
}

// FilteredMemories scopes to workspaceID, applies the search query against
// title, content and tags, then sorts a copy by the current sort mode.
func (s *MemoryStore) FilteredMemories(workspaceID string) []models.Memory {
	s.mu.Lock()
	query, mode := s.searchQuery, s.sortBy
	s.mu.Unlock()
	return s.SearchMemories(workspaceID, query, mode)
}

// SearchMemories filters like FilteredMemories but with an explicit query and
// sort mode, leaving the stored search state untouched. An empty workspaceID
// searches every workspace.
func (s *MemoryStore) SearchMemories(workspaceID, query string, mode models.SortMode) []models.Memory {
	query = strings.ToLower(query)
	s.mu.Lock()
	out := cloneMemories(s.memories, func(m models.Memory) bool {
		return (workspaceID == "" || m.WorkspaceID == workspaceID) && matchesQuery(m, query)
	})
	s.mu.Unlock()

	sortMemories(out, mode)
	return out
}

func (s *MemoryStore) SearchQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchQuery
}

func (s *MemoryStore) SortBy() models.SortMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortBy
}

func (s *MemoryStore) SelectedMemory() (models.Memory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(s.selectedID)
	if i < 0 {
		return models.Memory{}, false
	}
	return s.memories[i].Clone(), true
}

func (s *MemoryStore) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.memories {
		if s.memories[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneMemories(in []models.Memory, keep func(models.Memory) bool) []models.Memory {
	out := []models.Memory{}
	for _, m := range in {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	return out
}

// matchesQuery expects query to be lower-cased already. An empty query matches
// everything.
func matchesQuery(m models.Memory, query string) bool {
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(m.Title), query) || strings.Contains(strings.ToLower(m.Content), query) {
		return true
	}
	for _, tag := range m.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

func sortMemories(ms []models.Memory, mode models.SortMode) {
	switch mode {
	case models.SortTitle:
		sort.SliceStable(ms, func(i, j int) bool {
			a, b := strings.ToLower(ms[i].Title), strings.ToLower(ms[j].Title)
			if a != b {
				return a < b
			}
			return ms[i].Title < ms[j].Title
		})
	default:
		sort.SliceStable(ms, func(i, j int) bool {
			return ms[i].UpdatedAt.After(ms[j].UpdatedAt)
		})
	}
}
