// Package conversationapi provides the conversation collaborator used by the
// conversation store: an HTTP client for a remote service, and an in-process
// backend that implements the same contract (and can serve it over HTTP).
package conversationapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/chimera-protocol/chimera/apps/state/internal/clock"
	"github.com/chimera-protocol/chimera/apps/state/internal/errs"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
)

// Responder produces the assistant reply for a user message.
type Responder func(conv models.Conversation, content string) string

// EchoResponder is the demo reply used when no model is wired in.
func EchoResponder(conv models.Conversation, content string) string {
	return fmt.Sprintf("[%s] Received: %s", conv.ModelID, content)
}

// Local keeps conversations in memory and answers like a remote service would,
// returning wire records with serialized timestamps.
type Local struct {
	mu      sync.Mutex
	clock   clock.Scheduler
	respond Responder
	convs   map[string]*models.Conversation
	order   []string
}

func NewLocal(sched clock.Scheduler, respond Responder) *Local {
	if respond == nil {
		respond = EchoResponder
	}
	return &Local{
		clock:   sched,
		respond: respond,
		convs:   make(map[string]*models.Conversation),
	}
}

// Seed stores c as-is, replacing any conversation with the same id.
func (l *Local) Seed(c models.Conversation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.convs[c.ID]; !ok {
		l.order = append(l.order, c.ID)
	}
	cp := c.Clone()
	if cp.InjectedMemories == nil {
		cp.InjectedMemories = []string{}
	}
	l.convs[c.ID] = &cp
}

func (l *Local) ListConversations(_ context.Context, workspaceID string) ([]models.ConversationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []models.ConversationRecord{}
	for _, id := range l.order {
		c := l.convs[id]
		if c.WorkspaceID != workspaceID {
			continue
		}
		rec := models.NewConversationRecord(*c)
		// Listings carry metadata only; transcripts come from GetConversation.
		rec.Messages = []models.MessageRecord{}
		out = append(out, rec)
	}
	return out, nil
}

func (l *Local) CreateConversation(_ context.Context, workspaceID, title, modelID string) (models.ConversationRecord, error) {
	if workspaceID == "" {
		return models.ConversationRecord{}, errs.Invalid("create conversation", "workspaceId is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	c := &models.Conversation{
		ID:               uuid.New().String(),
		WorkspaceID:      workspaceID,
		ModelID:          modelID,
		Title:            title,
		Messages:         []models.Message{},
		InjectedMemories: []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	l.convs[c.ID] = c
	l.order = append(l.order, c.ID)
	return models.NewConversationRecord(*c), nil
}

func (l *Local) GetConversation(_ context.Context, id string) (models.ConversationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.convs[id]
	if !ok {
		return models.ConversationRecord{}, errs.NotFound("get conversation", id)
	}
	return models.NewConversationRecord(*c), nil
}

func (l *Local) UpdateConversation(_ context.Context, id string, upd models.ConversationUpdate) (models.ConversationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.convs[id]
	if !ok {
		return models.ConversationRecord{}, errs.NotFound("update conversation", id)
	}
	if upd.Title != nil {
		c.Title = *upd.Title
	}
	if upd.ModelID != nil {
		c.ModelID = *upd.ModelID
	}
	c.UpdatedAt = l.clock.Now()
	return models.NewConversationRecord(*c), nil
}

func (l *Local) DeleteConversation(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.convs[id]; !ok {
		return errs.NotFound("delete conversation", id)
	}
	delete(l.convs, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return nil
}

func (l *Local) SendMessage(_ context.Context, conversationID, content string, wantAIResponse bool) (models.SendMessageResult, error) {
	if content == "" {
		return models.SendMessageResult{}, errs.Invalid("send message", "content is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.convs[conversationID]
	if !ok {
		return models.SendMessageResult{}, errs.NotFound("send message", conversationID)
	}

	now := l.clock.Now()
	user := models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        content,
		Timestamp:      now,
	}
	c.Messages = append(c.Messages, user)
	res := models.SendMessageResult{UserMessage: models.NewMessageRecord(user)}

	if wantAIResponse {
		reply := models.Message{
			ID:             uuid.New().String(),
			ConversationID: conversationID,
			Role:           models.RoleAssistant,
			Content:        l.respond(*c, content),
			Timestamp:      now,
		}
		c.Messages = append(c.Messages, reply)
		rec := models.NewMessageRecord(reply)
		res.AssistantMessage = &rec
	}
	c.UpdatedAt = now
	return res, nil
}

func (l *Local) UpdateMessage(_ context.Context, conversationID, messageID string, upd models.MessageUpdate) (models.MessageRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.convs[conversationID]
	if !ok {
		return models.MessageRecord{}, errs.NotFound("update message", conversationID)
	}
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.ID != messageID {
			continue
		}
		if upd.IsPinned != nil {
			m.IsPinned = *upd.IsPinned
		}
		if upd.Content != nil {
			m.Content = *upd.Content
		}
		return models.NewMessageRecord(*m), nil
	}
	return models.MessageRecord{}, errs.NotFound("update message", messageID)
}

func (l *Local) DeleteMessage(_ context.Context, conversationID, messageID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.convs[conversationID]
	if !ok {
		return errs.NotFound("delete message", conversationID)
	}
	for i, m := range c.Messages {
		if m.ID == messageID {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			return nil
		}
	}
	return errs.NotFound("delete message", messageID)
}

func (l *Local) InjectMemory(_ context.Context, conversationID, memoryID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.convs[conversationID]
	if !ok {
		return errs.NotFound("inject memory", conversationID)
	}
	if !c.HasInjected(memoryID) {
		c.InjectedMemories = append(c.InjectedMemories, memoryID)
		c.UpdatedAt = l.clock.Now()
	}
	return nil
}

func (l *Local) RemoveInjectedMemory(_ context.Context, conversationID, memoryID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.convs[conversationID]
	if !ok {
		return errs.NotFound("remove injected memory", conversationID)
	}
	ids := make([]string, 0, len(c.InjectedMemories))
	for _, id := range c.InjectedMemories {
		if id != memoryID {
			ids = append(ids, id)
		}
	}
	c.InjectedMemories = ids
	c.UpdatedAt = l.clock.Now()
	return nil
}
