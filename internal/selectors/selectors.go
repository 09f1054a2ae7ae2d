// Package selectors derives read-only views that span more than one store.
// Nothing here mutates state; every result is a copy.
package selectors

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/chimera-protocol/chimera/apps/state/internal/models"
	"github.com/chimera-protocol/chimera/apps/state/internal/store"
)

// Stores bundles the entity stores the projections read from.
type Stores struct {
	Workspaces    *store.WorkspaceStore
	Conversations *store.ConversationStore
	Memories      *store.MemoryStore
	Integrations  *store.IntegrationStore
}

// ConversationSummary is a conversation without its transcript.
type ConversationSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	ModelID       string    `json:"modelId"`
	MessageCount  int       `json:"messageCount"`
	HistoryLoaded bool      `json:"historyLoaded"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Stats are counters computed from the stores rather than the workspace's
// stored dashboard figures.
type Stats struct {
	WorkspaceID      string `json:"workspaceId"`
	Conversations    int    `json:"conversations"`
	Messages         int    `json:"messages"`
	PinnedMessages   int    `json:"pinnedMessages"`
	Memories         int    `json:"memories"`
	EmbeddedMemories int    `json:"embeddedMemories"`
	InjectedMemories int    `json:"injectedMemories"`
}

// Snapshot is everything a dashboard renders for the committed workspace.
type Snapshot struct {
	ActiveWorkspace      *models.Workspace       `json:"activeWorkspace,omitempty"`
	Transition           models.TransitionState  `json:"transition"`
	ActiveConversationID string                  `json:"activeConversationId,omitempty"`
	Conversations        []ConversationSummary   `json:"conversations"`
	Memories             []models.Memory         `json:"memories"`
	SearchQuery          string                  `json:"searchQuery"`
	SortBy               models.SortMode         `json:"sortBy"`
	ConnectedModels      []models.CognitiveModel `json:"connectedModels"`
	Stats                Stats                   `json:"stats"`
}

// Overview projects the committed active workspace. During a transition this is
// still the previous workspace.
func (s Stores) Overview() Snapshot {
	snap := Snapshot{
		Transition:           s.Workspaces.Transition(),
		ActiveConversationID: s.Conversations.ActiveConversationID(),
		Conversations:        []ConversationSummary{},
		Memories:             []models.Memory{},
		SearchQuery:          s.Memories.SearchQuery(),
		SortBy:               s.Memories.SortBy(),
		ConnectedModels:      s.Integrations.ConnectedModels(),
	}

	ws, ok := s.Workspaces.ActiveWorkspace()
	if !ok {
		return snap
	}
	snap.ActiveWorkspace = &ws
	for _, c := range s.Conversations.ConversationsByWorkspace(ws.ID) {
		snap.Conversations = append(snap.Conversations, ConversationSummary{
			ID:            c.ID,
			Title:         c.Title,
			ModelID:       c.ModelID,
			MessageCount:  len(c.Messages),
			HistoryLoaded: s.Conversations.HistoryLoaded(c.ID),
			UpdatedAt:     c.UpdatedAt,
		})
	}
	snap.Memories = s.Memories.FilteredMemories(ws.ID)
	snap.Stats = s.LiveStats(ws.ID)
	return snap
}

// LiveStats counts what the stores currently hold for workspaceID. Message
// counts only cover transcripts that have been loaded.
func (s Stores) LiveStats(workspaceID string) Stats {
	st := Stats{WorkspaceID: workspaceID}
	for _, c := range s.Conversations.ConversationsByWorkspace(workspaceID) {
		st.Conversations++
		st.Messages += len(c.Messages)
		st.InjectedMemories += len(c.InjectedMemories)
		for _, m := range c.Messages {
			if m.IsPinned {
				st.PinnedMessages++
			}
		}
	}
	for _, m := range s.Memories.MemoriesByWorkspace(workspaceID) {
		st.Memories++
		if len(m.Embedding) > 0 {
			st.EmbeddedMemories++
		}
	}
	return st
}

// OrphanedConversations lists conversations whose workspace no longer exists.
func (s Stores) OrphanedConversations() []models.Conversation {
	known := s.workspaceIDs()
	out := []models.Conversation{}
	for _, c := range s.Conversations.Conversations() {
		if !known[c.WorkspaceID] {
			out = append(out, c)
		}
	}
	return out
}

// OrphanedMemories lists memories whose workspace no longer exists.
func (s Stores) OrphanedMemories() []models.Memory {
	known := s.workspaceIDs()
	out := []models.Memory{}
	for _, m := range s.Memories.Memories() {
		if !known[m.WorkspaceID] {
			out = append(out, m)
		}
	}
	return out
}

// DanglingInjections maps conversation ids to injected memory ids that no
// longer resolve.
func (s Stores) DanglingInjections() map[string][]string {
	out := make(map[string][]string)
	for _, c := range s.Conversations.Conversations() {
		for _, id := range c.InjectedMemories {
			if _, ok := s.Memories.MemoryByID(id); !ok {
				out[c.ID] = append(out[c.ID], id)
			}
		}
	}
	return out
}

func (s Stores) workspaceIDs() map[string]bool {
	ws := s.Workspaces.Workspaces()
	known := make(map[string]bool, len(ws))
	for _, w := range ws {
		known[w.ID] = true
	}
	return known
}

// FindWorkspace resolves a workspace by name: exact match ignoring case first,
// otherwise the closest name within an edit distance of a third of the query.
func (s Stores) FindWorkspace(name string) (models.Workspace, bool) {
	return FindWorkspace(s.Workspaces.Workspaces(), name)
}

func FindWorkspace(workspaces []models.Workspace, name string) (models.Workspace, bool) {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return models.Workspace{}, false
	}
	for _, w := range workspaces {
		if strings.ToLower(w.Name) == query {
			return w, true
		}
	}

	type candidate struct {
		idx  int
		dist int
	}
	limit := utf8.RuneCountInString(query) / 3
	var cands []candidate
	for i, w := range workspaces {
		d := levenshtein.ComputeDistance(query, strings.ToLower(w.Name))
		if d <= limit {
			cands = append(cands, candidate{idx: i, dist: d})
		}
	}
	if len(cands) == 0 {
		return models.Workspace{}, false
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	return workspaces[cands[0].idx], true
}
