package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chimera-protocol/chimera/apps/state/internal/clock"
	"github.com/chimera-protocol/chimera/apps/state/internal/errs"
	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
	"github.com/chimera-protocol/chimera/apps/state/internal/metrics"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
)

// Status messages written into Integration.ErrorMessage.
const (
	MsgKeyRequired      = "API key is required"
	MsgNoKeyConfigured  = "No API key configured"
	MsgConnectionFailed = "Connection failed. Please check your API key."
)

// Prober checks whether apiKey is accepted by provider. A nil error means the
// connection works.
type Prober interface {
	Probe(ctx context.Context, provider models.Provider, apiKey string) error
}

// IntegrationStore owns one Integration per provider for a single user.
type IntegrationStore struct {
	mu      sync.Mutex
	prober  Prober
	clock   clock.Scheduler
	userID  string
	log     *logger.Logger
	metrics *metrics.Collector

	integrations []models.Integration
	// keyEpoch changes whenever a provider's key is replaced or removed, so
	// a probe started against the old key can tell it is stale.
	keyEpoch map[models.Provider]uint64
}

func NewIntegrationStore(prober Prober, sched clock.Scheduler, userID string, log *logger.Logger, m *metrics.Collector) *IntegrationStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &IntegrationStore{
		prober:   prober,
		clock:    sched,
		userID:   userID,
		log:      log.With("store", "integration"),
		metrics:  m,
		keyEpoch: make(map[models.Provider]uint64),
	}
}

// Load replaces the collection, typically with seed data. Later duplicates of
// a provider are dropped.
func (s *IntegrationStore) Load(integrations []models.Integration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[models.Provider]bool)
	s.integrations = make([]models.Integration, 0, len(integrations))
	for _, in := range integrations {
		if !in.Provider.IsValid() || seen[in.Provider] {
			continue
		}
		seen[in.Provider] = true
		s.integrations = append(s.integrations, in.Clone())
		s.keyEpoch[in.Provider]++
	}
}

// SaveAPIKey stores key for provider and marks it connected, creating the
// integration if needed. An empty key is reported through the integration's
// status instead of an error.
func (s *IntegrationStore) SaveAPIKey(provider models.Provider, key string) error {
	if !provider.IsValid() {
		return errs.Invalid("save api key", "unknown provider "+string(provider))
	}
	key = strings.TrimSpace(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	in := s.findLocked(provider)
	if in == nil {
		s.integrations = append(s.integrations, models.Integration{
			ID:       uuid.New().String(),
			UserID:   s.userID,
			Provider: provider,
		})
		in = &s.integrations[len(s.integrations)-1]
		in.LastTested = &now
	}

	if key == "" {
		in.Status = models.StatusError
		in.ErrorMessage = MsgKeyRequired
		s.log.Debug("empty api key rejected", "provider", provider)
		return nil
	}

	in.APIKey = key
	in.Status = models.StatusConnected
	in.ErrorMessage = ""
	s.keyEpoch[provider]++

	s.metrics.RecordMutation("integration", "save_key")
	s.log.Debug("api key saved", "provider", provider)
	return nil
}

// TestConnection probes provider with its stored key and records the outcome.
// The result is discarded with errs.ErrSuperseded if the key changed while the
// probe was running.
func (s *IntegrationStore) TestConnection(ctx context.Context, provider models.Provider) (bool, error) {
	if !provider.IsValid() {
		return false, errs.Invalid("test connection", "unknown provider "+string(provider))
	}

	s.mu.Lock()
	in := s.findLocked(provider)
	if in == nil || in.APIKey == "" {
		if in != nil {
			now := s.clock.Now()
			in.Status = models.StatusError
			in.ErrorMessage = MsgNoKeyConfigured
			in.LastTested = &now
		}
		s.mu.Unlock()
		return false, nil
	}
	key := in.APIKey
	epoch := s.keyEpoch[provider]
	s.mu.Unlock()

	started := time.Now()
	probeErr := s.prober.Probe(ctx, provider, key)
	s.metrics.RecordExternalCall("prober", string(provider), started, probeErr)
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	in = s.findLocked(provider)
	if in == nil || s.keyEpoch[provider] != epoch {
		s.log.Debug("discarding stale connection test", "provider", provider)
		return false, errs.Superseded("test connection", string(provider))
	}

	now := s.clock.Now()
	in.LastTested = &now
	if probeErr != nil {
		in.Status = models.StatusError
		in.ErrorMessage = MsgConnectionFailed
		s.log.Warn("connection test failed", "provider", provider, "error", probeErr)
		return false, nil
	}
	in.Status = models.StatusConnected
	in.ErrorMessage = ""
	s.metrics.RecordMutation("integration", "test_connection")
	return true, nil
}

// DisableIntegration disconnects provider and forgets its key. The record is
// kept so SaveAPIKey can reactivate it.
func (s *IntegrationStore) DisableIntegration(provider models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := s.findLocked(provider)
	if in == nil {
		return errs.NotFound("disable integration", string(provider))
	}
	in.Status = models.StatusDisconnected
	in.APIKey = ""
	in.ErrorMessage = ""
	s.keyEpoch[provider]++

	s.metrics.RecordMutation("integration", "disable")
	s.log.Debug("integration disabled", "provider", provider)
	return nil
}

// UpdateIntegrationStatus overrides the status and message of provider.
func (s *IntegrationStore) UpdateIntegrationStatus(provider models.Provider, status models.IntegrationStatus, message string) error {
	if !status.IsValid() {
		return errs.Invalid("update integration status", "unknown status "+string(status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	in := s.findLocked(provider)
	if in == nil {
		return errs.NotFound("update integration status", string(provider))
	}
	in.Status = status
	in.ErrorMessage = message

	s.metrics.RecordMutation("integration", "update_status")
	return nil
}

// --- Selectors ---

func (s *IntegrationStore) Integrations() []models.Integration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Integration, 0, len(s.integrations))
	for _, in := range s.integrations {
		out = append(out, in.Clone())
	}
	return out
}

func (s *IntegrationStore) IntegrationByProvider(provider models.Provider) (models.Integration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := s.findLocked(provider)
	if in == nil {
		return models.Integration{}, false
	}
	return in.Clone(), true
}

func (s *IntegrationStore) IsProviderConnected(provider models.Provider) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := s.findLocked(provider)
	return in != nil && in.Status == models.StatusConnected
}

// ConnectedModels projects every connected integration onto its model
// descriptor, in the fixed provider order.
func (s *IntegrationStore) ConnectedModels() []models.CognitiveModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.CognitiveModel{}
	for _, p := range models.Providers {
		in := s.findLocked(p)
		if in == nil || in.Status != models.StatusConnected {
			continue
		}
		if m, ok := models.ModelFor(p); ok {
			out = append(out, m)
		}
	}
	return out
}

func (s *IntegrationStore) findLocked(provider models.Provider) *models.Integration {
	for i := range s.integrations {
		if s.integrations[i].Provider == provider {
			return &s.integrations[i]
		}
	}
	return nil
}
