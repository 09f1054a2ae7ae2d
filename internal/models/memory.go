package models

import "time"

// SnippetLength is the number of characters kept in a memory snippet.
const SnippetLength = 150

// Memory is a taggable, versioned knowledge snippet owned by a workspace.
type Memory struct {
	ID          string            `json:"id" yaml:"id"`
	WorkspaceID string            `json:"workspaceId" yaml:"workspaceId"`
	Title       string            `json:"title" yaml:"title"`
	Content     string            `json:"content" yaml:"content"`
	Snippet     string            `json:"snippet" yaml:"-"`
	Tags        []string          `json:"tags" yaml:"tags"`
	Metadata    map[string]string `json:"metadata" yaml:"metadata,omitempty"`
	Embedding   []float32         `json:"embedding,omitempty" yaml:"-"`
	CreatedAt   time.Time         `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt" yaml:"updatedAt"`
	Version     int               `json:"version" yaml:"version"`
}

// Clone returns a copy that shares no slices or maps with m.
func (m Memory) Clone() Memory {
	out := m
	out.Tags = cloneStrings(m.Tags)
	if m.Metadata != nil {
		out.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	if m.Embedding != nil {
		out.Embedding = make([]float32, len(m.Embedding))
		copy(out.Embedding, m.Embedding)
	}
	return out
}

// Snippet returns the first SnippetLength characters of content, followed by an
// ellipsis only when content is longer than that.
func Snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= SnippetLength {
		return content
	}
	return string(runes[:SnippetLength]) + "..."
}

// NewMemory is the payload for adding a memory.
type NewMemory struct {
	WorkspaceID string            `json:"workspaceId" validate:"required"`
	Title       string            `json:"title" validate:"required,max=200"`
	Content     string            `json:"content"`
	Tags        []string          `json:"tags" validate:"dive,required"`
	Metadata    map[string]string `json:"metadata"`
	Embedding   []float32         `json:"embedding,omitempty"`
}

// MemoryUpdate is a partial update; nil fields are left unchanged.
type MemoryUpdate struct {
	WorkspaceID *string            `json:"workspaceId,omitempty" validate:"omitempty,min=1"`
	Title       *string            `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Content     *string            `json:"content,omitempty"`
	Tags        *[]string          `json:"tags,omitempty"`
	Metadata    *map[string]string `json:"metadata,omitempty"`
}

// SortMode orders the filtered memory list.
type SortMode string

const (
	SortRecent SortMode = "recent"
	SortTitle  SortMode = "title"
	// SortRelevance orders exactly like SortRecent; no ranking model exists yet.
	SortRelevance SortMode = "relevance"
)

func (s SortMode) IsValid() bool {
	return s == SortRecent || s == SortTitle || s == SortRelevance
}

// MemoryQuery is the payload for PUT /memories/query.
type MemoryQuery struct {
	Query  *string   `json:"query,omitempty"`
	SortBy *SortMode `json:"sortBy,omitempty"`
}
