package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chimera-protocol/chimera/apps/state/internal/clock"
	"github.com/chimera-protocol/chimera/apps/state/internal/errs"
	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
	"github.com/chimera-protocol/chimera/apps/state/internal/metrics"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
)

// TransitionTiming configures the workspace-switch animation.
type TransitionTiming struct {
	Duration time.Duration
	Interval time.Duration
}

func DefaultTransitionTiming() TransitionTiming {
	return TransitionTiming{Duration: 3 * time.Second, Interval: 50 * time.Millisecond}
}

// Steps is the number of ticks needed to reach 100% progress.
func (t TransitionTiming) Steps() int {
	if t.Interval <= 0 {
		return 1
	}
	n := int(t.Duration / t.Interval)
	if n < 1 {
		return 1
	}
	return n
}

// WorkspaceStore owns the workspace collection and the transition controller
// that governs which workspace is committed as active.
//
// While a switch animates, ActiveWorkspaceID keeps returning the previous
// workspace; the target only becomes active on the tick after progress
// reaches 100.
type WorkspaceStore struct {
	mu      sync.Mutex
	clock   clock.Scheduler
	timing  TransitionTiming
	log     *logger.Logger
	metrics *metrics.Collector
	ownerID string

	workspaces []models.Workspace
	activeID   string
	transition models.TransitionState

	step       int
	generation uint64
	stopTick   clock.CancelFunc
}

func NewWorkspaceStore(sched clock.Scheduler, timing TransitionTiming, log *logger.Logger, m *metrics.Collector, ownerID string) *WorkspaceStore {
	if log == nil {
		log = logger.NewNop()
	}
	if timing.Interval <= 0 {
		timing = DefaultTransitionTiming()
	}
	return &WorkspaceStore{
		clock:   sched,
		timing:  timing,
		log:     log.With("store", "workspace"),
		metrics: m,
		ownerID: ownerID,
	}
}

// Load replaces the collection, typically with seed data. The first workspace
// becomes active; any transition is cancelled.
func (s *WorkspaceStore) Load(workspaces []models.Workspace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTransitionLocked()
	s.workspaces = make([]models.Workspace, 0, len(workspaces))
	for _, w := range workspaces {
		s.workspaces = append(s.workspaces, w.Clone())
	}
	s.activeID = ""
	if len(s.workspaces) > 0 {
		s.activeID = s.workspaces[0].ID
	}
}

// SetActiveWorkspace starts an animated switch to id.
func (s *WorkspaceStore) SetActiveWorkspace(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) < 0 {
		return errs.NotFound("set active workspace", id)
	}

	// Re-selecting the committed workspace or the in-flight target changes
	// nothing; a running transition keeps going.
	if id == s.activeID || (s.transition.IsTransitioning && id == s.transition.TargetWorkspaceID) {
		return nil
	}

	s.stopTimerLocked()
	s.generation++
	gen := s.generation
	s.step = 0
	s.transition = models.TransitionState{
		IsTransitioning:     true,
		Progress:            0,
		PreviousWorkspaceID: s.activeID,
		TargetWorkspaceID:   id,
	}
	s.stopTick = s.clock.Every(s.timing.Interval, func() { s.tick(gen) })

	s.metrics.RecordTransition("started")
	s.log.Debug("transition started", "from", s.activeID, "to", id, "steps", s.timing.Steps())
	return nil
}

func (s *WorkspaceStore) tick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || !s.transition.IsTransitioning {
		return
	}

	if s.transition.Progress >= 100 {
		target := s.transition.TargetWorkspaceID
		s.stopTimerLocked()
		if target != "" {
			s.activeID = target
		}
		s.transition = models.TransitionState{}
		s.step = 0
		s.metrics.RecordTransition("completed")
		s.log.Debug("transition committed", "workspace_id", target)
		return
	}

	steps := s.timing.Steps()
	s.step++
	p := float64(s.step*100) / float64(steps)
	if p > 100 {
		p = 100
	}
	s.transition.Progress = p
}

// CreateWorkspace adds a workspace and makes it active immediately, without
// animation.
func (s *WorkspaceStore) CreateWorkspace(name, description string) (models.Workspace, error) {
	req := models.CreateWorkspaceRequest{Name: name, Description: description}
	if err := Validate("create workspace", req); err != nil {
		return models.Workspace{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	w := models.Workspace{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		OwnerID:     s.ownerID,
		Members:     []string{},
		Stats:       models.WorkspaceStats{LastActivity: now},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.cancelTransitionLocked()
	s.workspaces = append(s.workspaces, w)
	s.activeID = w.ID

	s.metrics.RecordMutation("workspace", "create")
	s.log.Debug("workspace created", "workspace_id", w.ID, "name", name)
	return w.Clone(), nil
}

// UpdateWorkspace merges upd into the workspace and refreshes UpdatedAt.
func (s *WorkspaceStore) UpdateWorkspace(id string, upd models.WorkspaceUpdate) (models.Workspace, error) {
	if err := Validate("update workspace", upd); err != nil {
		return models.Workspace{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return models.Workspace{}, errs.NotFound("update workspace", id)
	}
	w := &s.workspaces[i]
	if upd.Name != nil {
		w.Name = *upd.Name
	}
	if upd.Description != nil {
		w.Description = *upd.Description
	}
	if upd.Members != nil {
		w.Members = append([]string{}, (*upd.Members)...)
	}
	if upd.Stats != nil {
		w.Stats = *upd.Stats
	}
	w.UpdatedAt = s.clock.Now()

	s.metrics.RecordMutation("workspace", "update")
	return w.Clone(), nil
}

// DeleteWorkspace removes id. Removing the active workspace falls back to the
// first remaining one, or to none, without animation.
func (s *WorkspaceStore) DeleteWorkspace(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return errs.NotFound("delete workspace", id)
	}

	if s.transition.IsTransitioning && (id == s.transition.TargetWorkspaceID || id == s.activeID) {
		s.cancelTransitionLocked()
		s.metrics.RecordTransition("cancelled")
	}

	s.workspaces = append(s.workspaces[:i], s.workspaces[i+1:]...)
	if s.activeID == id {
		s.activeID = ""
		if len(s.workspaces) > 0 {
			s.activeID = s.workspaces[0].ID
		}
	}

	s.metrics.RecordMutation("workspace", "delete")
	s.log.Debug("workspace deleted", "workspace_id", id, "active", s.activeID)
	return nil
}

// --- Manual overlay controls ---
//
// These only drive the overlay; none of them changes the committed active id.

// StartTransition shows the overlay at 0%.
func (s *WorkspaceStore) StartTransition() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transition.IsTransitioning = true
	s.transition.Progress = 0
}

// UpdateTransitionProgress sets the overlay progress, clamped to [0, 100].
func (s *WorkspaceStore) UpdateTransitionProgress(p float64) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transition.Progress = p
}

// CompleteTransition hides the overlay and stops any running timer.
func (s *WorkspaceStore) CompleteTransition() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTransitionLocked()
}

// --- Selectors ---

func (s *WorkspaceStore) Workspaces() []models.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Workspace, 0, len(s.workspaces))
	for _, w := range s.workspaces {
		out = append(out, w.Clone())
	}
	return out
}

func (s *WorkspaceStore) WorkspaceByID(id string) (models.Workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.Workspace{}, false
	}
	return s.workspaces[i].Clone(), true
}

// ActiveWorkspaceID returns the committed active id, or "" when none.
func (s *WorkspaceStore) ActiveWorkspaceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

func (s *WorkspaceStore) ActiveWorkspace() (models.Workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(s.activeID)
	if i < 0 {
		return models.Workspace{}, false
	}
	return s.workspaces[i].Clone(), true
}

func (s *WorkspaceStore) Transition() models.TransitionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition
}

func (s *WorkspaceStore) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.workspaces {
		if s.workspaces[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *WorkspaceStore) stopTimerLocked() {
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
}

// cancelTransitionLocked returns the controller to idle. Bumping the
// generation drops any tick that was already in flight.
func (s *WorkspaceStore) cancelTransitionLocked() {
	s.stopTimerLocked()
	s.generation++
	s.step = 0
	s.transition = models.TransitionState{}
}
