package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chimera-protocol/chimera/apps/state/internal/clock"
	"github.com/chimera-protocol/chimera/apps/state/internal/errs"
	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
	"github.com/chimera-protocol/chimera/apps/state/internal/metrics"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
)

// DefaultConversationTitle is used when a conversation is created without one.
const DefaultConversationTitle = "New Conversation"

// ConversationAPI is the remote system of record for conversations. Every
// method returns wire records whose timestamps are still strings.
type ConversationAPI interface {
	ListConversations(ctx context.Context, workspaceID string) ([]models.ConversationRecord, error)
	CreateConversation(ctx context.Context, workspaceID, title, modelID string) (models.ConversationRecord, error)
	GetConversation(ctx context.Context, id string) (models.ConversationRecord, error)
	UpdateConversation(ctx context.Context, id string, upd models.ConversationUpdate) (models.ConversationRecord, error)
	DeleteConversation(ctx context.Context, id string) error
	SendMessage(ctx context.Context, conversationID, content string, wantAIResponse bool) (models.SendMessageResult, error)
	UpdateMessage(ctx context.Context, conversationID, messageID string, upd models.MessageUpdate) (models.MessageRecord, error)
	DeleteMessage(ctx context.Context, conversationID, messageID string) error
	InjectMemory(ctx context.Context, conversationID, memoryID string) error
	RemoveInjectedMemory(ctx context.Context, conversationID, memoryID string) error
}

// ConversationStore caches conversations and their transcripts. Every mutation
// goes through the ConversationAPI first; local state only changes after the
// call succeeds, re-reading the latest state under the lock.
type ConversationStore struct {
	mu      sync.Mutex
	api     ConversationAPI
	clock   clock.Scheduler
	log     *logger.Logger
	metrics *metrics.Collector

	conversations []models.Conversation
	activeID      string
	autoStore     bool
	loading       int

	// History bookkeeping: loaded marks transcripts fetched at least once,
	// historyReq holds the latest load request issued per conversation and
	// touched the request counter at its last local transcript commit.
	loaded     map[string]bool
	historyReq map[string]uint64
	listReq    map[string]uint64
	touched    map[string]uint64
	nextReq    uint64

	history singleflight.Group
}

func NewConversationStore(api ConversationAPI, sched clock.Scheduler, log *logger.Logger, m *metrics.Collector) *ConversationStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &ConversationStore{
		api:        api,
		clock:      sched,
		log:        log.With("store", "conversation"),
		metrics:    m,
		autoStore:  true,
		loaded:     make(map[string]bool),
		historyReq: make(map[string]uint64),
		listReq:    make(map[string]uint64),
		touched:    make(map[string]uint64),
	}
}

// LoadConversations replaces the conversations of workspaceID with the listed
// ones. Conversations that are still listed keep their loaded transcript, and
// any messages committed locally that the listing lacks. A conversation changed
// locally while the list was in flight keeps its injected set too.
// Conversations of other workspaces are untouched.
func (s *ConversationStore) LoadConversations(ctx context.Context, workspaceID string) error {
	s.mu.Lock()
	s.loading++
	s.nextReq++
	req := s.nextReq
	s.listReq[workspaceID] = req
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}()

	var records []models.ConversationRecord
	err := s.call("list", workspaceID, func() (err error) {
		records, err = s.api.ListConversations(ctx, workspaceID)
		return err
	})
	if err != nil {
		return err
	}

	listed := make([]models.Conversation, 0, len(records))
	for _, r := range records {
		c, err := r.ToConversation()
		if err != nil {
			return s.fail("list", workspaceID, err)
		}
		listed = append(listed, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listReq[workspaceID] != req {
		s.log.Debug("discarding stale conversation list", "workspace_id", workspaceID)
		return nil
	}
	delete(s.listReq, workspaceID)

	existing := make(map[string]models.Conversation)
	kept := make([]models.Conversation, 0, len(s.conversations)+len(listed))
	for _, c := range s.conversations {
		if c.WorkspaceID == workspaceID {
			existing[c.ID] = c
			continue
		}
		kept = append(kept, c)
	}

	listedIDs := make(map[string]bool, len(listed))
	for i, c := range listed {
		listedIDs[c.ID] = true
		old, ok := existing[c.ID]
		if !ok {
			kept = append(kept, c)
			continue
		}
		if s.loaded[c.ID] || s.touched[c.ID] > req {
			c.Messages = old.Messages
			c.InjectedMemories = old.InjectedMemories
		} else {
			c.Messages = mergeMessages(c.Messages, old.Messages)
			if records[i].InjectedMemories == nil {
				c.InjectedMemories = old.InjectedMemories
			}
		}
		kept = append(kept, c)
	}
	for id := range existing {
		if !listedIDs[id] {
			s.forgetLocked(id)
		}
	}
	s.conversations = kept

	s.metrics.RecordMutation("conversation", "load")
	s.log.Debug("conversations loaded", "workspace_id", workspaceID, "count", len(listed))
	return nil
}

// CreateConversation creates a conversation remotely, appends it and makes it
// active. It returns the new conversation's id.
func (s *ConversationStore) CreateConversation(ctx context.Context, workspaceID, modelID, title string) (string, error) {
	if workspaceID == "" {
		return "", errs.Invalid("create conversation", "workspaceId is required")
	}
	if title == "" {
		title = DefaultConversationTitle
	}

	var rec models.ConversationRecord
	err := s.call("create", workspaceID, func() (err error) {
		rec, err = s.api.CreateConversation(ctx, workspaceID, title, modelID)
		return err
	})
	if err != nil {
		return "", err
	}
	c, err := rec.ToConversation()
	if err != nil {
		return "", s.fail("create", workspaceID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append(s.conversations, c)
	s.loaded[c.ID] = true
	s.activeID = c.ID

	s.metrics.RecordMutation("conversation", "create")
	s.log.Debug("conversation created", "conversation_id", c.ID, "workspace_id", workspaceID)
	return c.ID, nil
}

// UpdateConversation applies upd remotely and merges the returned metadata.
// The local transcript is kept.
func (s *ConversationStore) UpdateConversation(ctx context.Context, id string, upd models.ConversationUpdate) error {
	if err := Validate("update conversation", upd); err != nil {
		return err
	}
	if !s.exists(id) {
		return errs.NotFound("update conversation", id)
	}

	var rec models.ConversationRecord
	err := s.call("update", id, func() (err error) {
		rec, err = s.api.UpdateConversation(ctx, id, upd)
		return err
	})
	if err != nil {
		return err
	}
	updated, err := rec.ToConversation()
	if err != nil {
		return s.fail("update", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		s.log.Warn("conversation vanished during update", "conversation_id", id)
		return nil
	}
	c := &s.conversations[i]
	c.Title = updated.Title
	c.ModelID = updated.ModelID
	c.UpdatedAt = updated.UpdatedAt

	s.metrics.RecordMutation("conversation", "update")
	return nil
}

// DeleteConversation deletes id remotely, then locally. The active pointer is
// cleared if it pointed at id.
func (s *ConversationStore) DeleteConversation(ctx context.Context, id string) error {
	if !s.exists(id) {
		return errs.NotFound("delete conversation", id)
	}
	if err := s.call("delete", id, func() error {
		return s.api.DeleteConversation(ctx, id)
	}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
	}
	s.forgetLocked(id)

	s.metrics.RecordMutation("conversation", "delete")
	s.log.Debug("conversation deleted", "conversation_id", id)
	return nil
}

// SetActiveConversation points the active conversation at id ("" clears it).
// A conversation whose history was never loaded has it fetched before
// returning, even when messages were sent to it in the meantime.
func (s *ConversationStore) SetActiveConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	if id == "" {
		s.activeID = ""
		s.mu.Unlock()
		return nil
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return errs.NotFound("set active conversation", id)
	}
	s.activeID = id
	needLoad := !s.loaded[id]
	s.mu.Unlock()

	if !needLoad {
		return nil
	}
	return s.LoadConversationMessages(ctx, id)
}

// LoadConversationMessages fetches the transcript of id. Concurrent loads of
// the same conversation share one call, which is not bound to any one caller's
// context; each caller still returns early when its own ctx is done. Only the
// most recently issued load may commit. Messages appended locally that the
// fetched history does not contain are kept after it.
func (s *ConversationStore) LoadConversationMessages(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.indexLocked(id) < 0 {
		s.mu.Unlock()
		return errs.NotFound("load messages", id)
	}
	s.nextReq++
	req := s.nextReq
	s.historyReq[id] = req
	s.mu.Unlock()

	shared := context.WithoutCancel(ctx)
	ch := s.history.DoChan(id, func() (any, error) {
		var rec models.ConversationRecord
		err := s.call("get", id, func() (err error) {
			rec, err = s.api.GetConversation(shared, id)
			return err
		})
		return rec, err
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return res.Err
	}
	rec := res.Val.(models.ConversationRecord)
	msgs, err := models.ToMessages(rec.Messages)
	if err != nil {
		return s.fail("get", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.historyReq[id] != req {
		return nil
	}
	delete(s.historyReq, id)

	i := s.indexLocked(id)
	if i < 0 {
		return nil
	}
	c := &s.conversations[i]
	c.Messages = mergeMessages(msgs, c.Messages)
	if rec.InjectedMemories != nil {
		c.InjectedMemories = append([]string{}, rec.InjectedMemories...)
	}
	s.loaded[id] = true

	s.log.Debug("conversation history loaded", "conversation_id", id, "messages", len(c.Messages))
	return nil
}

// SendMessage posts content and appends the returned user message, then the
// assistant reply if one came back. On failure nothing is appended.
func (s *ConversationStore) SendMessage(ctx context.Context, id, content string, wantAIResponse bool) error {
	if !s.exists(id) {
		return errs.NotFound("send message", id)
	}

	var res models.SendMessageResult
	err := s.call("send_message", id, func() (err error) {
		res, err = s.api.SendMessage(ctx, id, content, wantAIResponse)
		return err
	})
	if err != nil {
		return err
	}

	records := []models.MessageRecord{res.UserMessage}
	if res.AssistantMessage != nil {
		records = append(records, *res.AssistantMessage)
	}
	msgs, err := models.ToMessages(records)
	if err != nil {
		return s.fail("send_message", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		s.log.Warn("conversation vanished during send", "conversation_id", id)
		return nil
	}
	c := &s.conversations[i]
	c.Messages = append(c.Messages, msgs...)
	c.UpdatedAt = s.clock.Now()
	s.touchLocked(id)

	s.metrics.RecordMutation("conversation", "send_message")
	return nil
}

func (s *ConversationStore) PinMessage(ctx context.Context, conversationID, messageID string) error {
	return s.setPinned(ctx, conversationID, messageID, true)
}

func (s *ConversationStore) UnpinMessage(ctx context.Context, conversationID, messageID string) error {
	return s.setPinned(ctx, conversationID, messageID, false)
}

func (s *ConversationStore) setPinned(ctx context.Context, conversationID, messageID string, pinned bool) error {
	op := "pin_message"
	if !pinned {
		op = "unpin_message"
	}
	if !s.exists(conversationID) {
		return errs.NotFound(op, conversationID)
	}
	if err := s.call(op, messageID, func() error {
		_, err := s.api.UpdateMessage(ctx, conversationID, messageID, models.MessageUpdate{IsPinned: &pinned})
		return err
	}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(conversationID); i >= 0 {
		msgs := s.conversations[i].Messages
		for j := range msgs {
			if msgs[j].ID == messageID {
				msgs[j].IsPinned = pinned
			}
		}
		s.touchLocked(conversationID)
	}
	s.metrics.RecordMutation("conversation", op)
	return nil
}

func (s *ConversationStore) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	if !s.exists(conversationID) {
		return errs.NotFound("delete message", conversationID)
	}
	if err := s.call("delete_message", messageID, func() error {
		return s.api.DeleteMessage(ctx, conversationID, messageID)
	}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(conversationID); i >= 0 {
		c := &s.conversations[i]
		msgs := c.Messages[:0:0]
		for _, m := range c.Messages {
			if m.ID != messageID {
				msgs = append(msgs, m)
			}
		}
		c.Messages = msgs
		s.touchLocked(conversationID)
	}
	s.metrics.RecordMutation("conversation", "delete_message")
	return nil
}

// InjectMemory adds memoryID to the conversation's injected set. Injecting an
// already injected memory is a no-op and makes no remote call.
func (s *ConversationStore) InjectMemory(ctx context.Context, conversationID, memoryID string) error {
	s.mu.Lock()
	i := s.indexLocked(conversationID)
	if i < 0 {
		s.mu.Unlock()
		return errs.NotFound("inject memory", conversationID)
	}
	already := s.conversations[i].HasInjected(memoryID)
	s.mu.Unlock()
	if already {
		return nil
	}

	if err := s.call("inject_memory", memoryID, func() error {
		return s.api.InjectMemory(ctx, conversationID, memoryID)
	}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(conversationID); i >= 0 {
		c := &s.conversations[i]
		if !c.HasInjected(memoryID) {
			c.InjectedMemories = append(c.InjectedMemories, memoryID)
			c.UpdatedAt = s.clock.Now()
		}
		s.touchLocked(conversationID)
	}
	s.metrics.RecordMutation("conversation", "inject_memory")
	return nil
}

func (s *ConversationStore) RemoveInjectedMemory(ctx context.Context, conversationID, memoryID string) error {
	if !s.exists(conversationID) {
		return errs.NotFound("remove injected memory", conversationID)
	}
	if err := s.call("remove_injected_memory", memoryID, func() error {
		return s.api.RemoveInjectedMemory(ctx, conversationID, memoryID)
	}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(conversationID); i >= 0 {
		c := &s.conversations[i]
		ids := make([]string, 0, len(c.InjectedMemories))
		for _, id := range c.InjectedMemories {
			if id != memoryID {
				ids = append(ids, id)
			}
		}
		c.InjectedMemories = ids
		c.UpdatedAt = s.clock.Now()
		s.touchLocked(conversationID)
	}
	s.metrics.RecordMutation("conversation", "remove_injected_memory")
	return nil
}

func (s *ConversationStore) SetAutoStore(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoStore = enabled
}

// --- Selectors ---

func (s *ConversationStore) AutoStore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoStore
}

func (s *ConversationStore) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading > 0
}

func (s *ConversationStore) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c.Clone())
	}
	return out
}

func (s *ConversationStore) ConversationsByWorkspace(workspaceID string) []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Conversation{}
	for _, c := range s.conversations {
		if c.WorkspaceID == workspaceID {
			out = append(out, c.Clone())
		}
	}
	return out
}

func (s *ConversationStore) ConversationByID(id string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

func (s *ConversationStore) ActiveConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

func (s *ConversationStore) ActiveConversation() (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(s.activeID)
	if i < 0 {
		return models.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

// MessageByID searches every cached transcript.
func (s *ConversationStore) MessageByID(id string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		for _, m := range c.Messages {
			if m.ID == id {
				return m, true
			}
		}
	}
	return models.Message{}, false
}

// HistoryLoaded reports whether the transcript of id has been fetched.
func (s *ConversationStore) HistoryLoaded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded[id]
}

func (s *ConversationStore) exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id) >= 0
}

func (s *ConversationStore) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *ConversationStore) forgetLocked(id string) {
	delete(s.loaded, id)
	delete(s.historyReq, id)
	delete(s.touched, id)
	if s.activeID == id {
		s.activeID = ""
	}
}

// touchLocked records a local transcript or injection commit on id, so a
// listing issued before it cannot overwrite it.
func (s *ConversationStore) touchLocked(id string) {
	s.nextReq++
	s.touched[id] = s.nextReq
}

// mergeMessages returns fetched followed by the local messages it lacks.
func mergeMessages(fetched, local []models.Message) []models.Message {
	seen := make(map[string]bool, len(fetched))
	for _, m := range fetched {
		seen[m.ID] = true
	}
	out := append([]models.Message{}, fetched...)
	for _, m := range local {
		if !seen[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

// call runs one conversation API request, recording its outcome. Failures are
// logged and returned as external errors.
func (s *ConversationStore) call(op, resource string, fn func() error) error {
	started := time.Now()
	err := fn()
	s.metrics.RecordExternalCall("conversation_api", op, started, err)
	if err != nil {
		return s.fail(op, resource, err)
	}
	return nil
}

func (s *ConversationStore) fail(op, resource string, err error) error {
	if errs.TypeOf(err) == errs.TypeExternal {
		return err
	}
	s.log.Error("conversation api call failed", "op", op, "resource", resource, "error", err)
	return errs.External(op+" conversation", resource, err)
}
