package models

import (
	"fmt"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Message belongs to exactly one conversation.
type Message struct {
	ID             string    `json:"id" yaml:"id"`
	ConversationID string    `json:"conversationId" yaml:"conversationId"`
	Role           Role      `json:"role" yaml:"role"`
	Content        string    `json:"content" yaml:"content"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	IsPinned       bool      `json:"isPinned" yaml:"isPinned"`
}

// Conversation is an ordered message thread bound to one workspace and model.
// Messages are kept in append order; InjectedMemories has set semantics.
type Conversation struct {
	ID               string    `json:"id" yaml:"id"`
	WorkspaceID      string    `json:"workspaceId" yaml:"workspaceId"`
	ModelID          string    `json:"modelId" yaml:"modelId"`
	Title            string    `json:"title" yaml:"title"`
	Messages         []Message `json:"messages" yaml:"messages"`
	InjectedMemories []string  `json:"injectedMemories" yaml:"injectedMemories"`
	CreatedAt        time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Clone returns a copy that shares no slices with c.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		copy(out.Messages, c.Messages)
	}
	out.InjectedMemories = cloneStrings(c.InjectedMemories)
	return out
}

// HasInjected reports whether memoryID is already injected.
func (c Conversation) HasInjected(memoryID string) bool {
	for _, id := range c.InjectedMemories {
		if id == memoryID {
			return true
		}
	}
	return false
}

// ConversationUpdate is a partial update sent to the conversation API.
type ConversationUpdate struct {
	Title   *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	ModelID *string `json:"modelId,omitempty" validate:"omitempty,min=1"`
}

// MessageUpdate is a partial message update sent to the conversation API.
type MessageUpdate struct {
	IsPinned *bool   `json:"isPinned,omitempty"`
	Content  *string `json:"content,omitempty"`
}

// --- Wire records returned by the conversation API ---
//
// Timestamps travel as RFC 3339 strings and are parsed before anything is stored.

type MessageRecord struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
	IsPinned       bool   `json:"isPinned"`
}

type ConversationRecord struct {
	ID               string          `json:"id"`
	WorkspaceID      string          `json:"workspaceId"`
	ModelID          string          `json:"modelId"`
	Title            string          `json:"title"`
	Messages         []MessageRecord `json:"messages"`
	InjectedMemories []string        `json:"injectedMemories"`
	CreatedAt        string          `json:"createdAt"`
	UpdatedAt        string          `json:"updatedAt"`
}

// ConversationList is the body of the list endpoint.
type ConversationList struct {
	Conversations []ConversationRecord `json:"conversations"`
}

// SendMessageResult carries the stored user message and, when requested, the reply.
type SendMessageResult struct {
	UserMessage      MessageRecord  `json:"userMessage"`
	AssistantMessage *MessageRecord `json:"assistantMessage,omitempty"`
}

// ParseTimestamp parses a serialized API timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// FormatTimestamp is the inverse of ParseTimestamp.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (r MessageRecord) ToMessage() (Message, error) {
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("message %s: %w", r.ID, err)
	}
	return Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           Role(r.Role),
		Content:        r.Content,
		Timestamp:      ts,
		IsPinned:       r.IsPinned,
	}, nil
}

// ToMessages parses a slice of records, failing on the first bad timestamp.
func ToMessages(records []MessageRecord) ([]Message, error) {
	msgs := make([]Message, 0, len(records))
	for _, r := range records {
		m, err := r.ToMessage()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r ConversationRecord) ToConversation() (Conversation, error) {
	created, err := ParseTimestamp(r.CreatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("conversation %s: %w", r.ID, err)
	}
	updated, err := ParseTimestamp(r.UpdatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("conversation %s: %w", r.ID, err)
	}
	msgs, err := ToMessages(r.Messages)
	if err != nil {
		return Conversation{}, err
	}
	injected := cloneStrings(r.InjectedMemories)
	if injected == nil {
		injected = []string{}
	}
	return Conversation{
		ID:               r.ID,
		WorkspaceID:      r.WorkspaceID,
		ModelID:          r.ModelID,
		Title:            r.Title,
		Messages:         msgs,
		InjectedMemories: injected,
		CreatedAt:        created,
		UpdatedAt:        updated,
	}, nil
}

func NewMessageRecord(m Message) MessageRecord {
	return MessageRecord{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           string(m.Role),
		Content:        m.Content,
		Timestamp:      FormatTimestamp(m.Timestamp),
		IsPinned:       m.IsPinned,
	}
}

func NewConversationRecord(c Conversation) ConversationRecord {
	msgs := make([]MessageRecord, 0, len(c.Messages))
	for _, m := range c.Messages {
		msgs = append(msgs, NewMessageRecord(m))
	}
	injected := cloneStrings(c.InjectedMemories)
	if injected == nil {
		injected = []string{}
	}
	return ConversationRecord{
		ID:               c.ID,
		WorkspaceID:      c.WorkspaceID,
		ModelID:          c.ModelID,
		Title:            c.Title,
		Messages:         msgs,
		InjectedMemories: injected,
		CreatedAt:        FormatTimestamp(c.CreatedAt),
		UpdatedAt:        FormatTimestamp(c.UpdatedAt),
	}
}
