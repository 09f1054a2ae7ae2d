package store

import (
	"context"
	"errors"
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

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, provider models.Provider, apiKey string) error {
	return m.Called(ctx, provider, apiKey).Error(0)
}

func newTestIntegrationStore(t *testing.T) (*IntegrationStore, *mockProber, *clock.Virtual) {
	t.Helper()
	p := &mockProber{}
	vc := clock.NewVirtual(epoch)
	return NewIntegrationStore(p, vc, "user-1", logger.NewNop(), nil), p, vc
}

func TestIntegrationStore_SaveAPIKey(t *testing.T) {
	s, _, vc := newTestIntegrationStore(t)

	require.NoError(t, s.SaveAPIKey(models.ProviderOpenAI, "sk-1"))
	in, ok := s.IntegrationByProvider(models.ProviderOpenAI)
	require.True(t, ok)
	assert.Equal(t, models.StatusConnected, in.Status)
	assert.Equal(t, "user-1", in.UserID)
	require.NotNil(t, in.LastTested)
	assert.Equal(t, epoch, *in.LastTested)

	vc.Advance(time.Minute)
	require.NoError(t, s.UpdateIntegrationStatus(models.ProviderOpenAI, models.StatusError, "rate limited"))
	require.NoError(t, s.SaveAPIKey(models.ProviderOpenAI, "sk-2"))
	in, _ = s.IntegrationByProvider(models.ProviderOpenAI)
	assert.Equal(t, "sk-2", in.APIKey)
	assert.Equal(t, models.StatusConnected, in.Status)
	assert.Empty(t, in.ErrorMessage)
	assert.Equal(t, epoch, *in.LastTested, "updating an existing key keeps lastTested")
	assert.Len(t, s.Integrations(), 1, "one integration per provider")

	assert.ErrorIs(t, s.SaveAPIKey("mistral", "k"), errs.ErrInvalid)
}

func TestIntegrationStore_SaveEmptyKeyReportsStatus(t *testing.T) {
	s, _, _ := newTestIntegrationStore(t)

	require.NoError(t, s.SaveAPIKey(models.ProviderGoogle, "   "))
	in, ok := s.IntegrationByProvider(models.ProviderGoogle)
	require.True(t, ok)
	assert.Equal(t, models.StatusError, in.Status)
	assert.Equal(t, MsgKeyRequired, in.ErrorMessage)
	assert.False(t, s.IsProviderConnected(models.ProviderGoogle))
}

func TestIntegrationStore_TestConnection(t *testing.T) {
	s, p, vc := newTestIntegrationStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAPIKey(models.ProviderAnthropic, "key"))

	p.On("Probe", mock.Anything, models.ProviderAnthropic, "key").Return(errors.New("401")).Once()
	vc.Advance(time.Hour)
	ok, err := s.TestConnection(ctx, models.ProviderAnthropic)
	require.NoError(t, err)
	assert.False(t, ok)
	in, _ := s.IntegrationByProvider(models.ProviderAnthropic)
	assert.Equal(t, models.StatusError, in.Status)
	assert.Equal(t, MsgConnectionFailed, in.ErrorMessage)
	assert.Equal(t, epoch.Add(time.Hour), *in.LastTested)

	p.On("Probe", mock.Anything, models.ProviderAnthropic, "key").Return(nil).Once()
	vc.Advance(time.Hour)
	ok, err = s.TestConnection(ctx, models.ProviderAnthropic)
	require.NoError(t, err)
	assert.True(t, ok)
	in, _ = s.IntegrationByProvider(models.ProviderAnthropic)
	assert.Equal(t, models.StatusConnected, in.Status)
	assert.Empty(t, in.ErrorMessage)
	assert.Equal(t, epoch.Add(2*time.Hour), *in.LastTested)
}

func TestIntegrationStore_TestConnectionWithoutKey(t *testing.T) {
	s, p, _ := newTestIntegrationStore(t)
	ctx := context.Background()

	ok, err := s.TestConnection(ctx, models.ProviderOpenAI)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveAPIKey(models.ProviderOpenAI, "k"))
	require.NoError(t, s.DisableIntegration(models.ProviderOpenAI))
	ok, err = s.TestConnection(ctx, models.ProviderOpenAI)
	require.NoError(t, err)
	assert.False(t, ok)

	in, _ := s.IntegrationByProvider(models.ProviderOpenAI)
	assert.Equal(t, models.StatusError, in.Status)
	assert.Equal(t, MsgNoKeyConfigured, in.ErrorMessage)
	p.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything, mock.Anything)
}

func TestIntegrationStore_TestConnectionSupersededByRekey(t *testing.T) {
	s, p, _ := newTestIntegrationStore(t)
	require.NoError(t, s.SaveAPIKey(models.ProviderOpenAI, "old"))

	entered := make(chan struct{})
	release := make(chan struct{})
	p.On("Probe", mock.Anything, models.ProviderOpenAI, "old").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(errors.New("bad key")).Once()

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := s.TestConnection(context.Background(), models.ProviderOpenAI)
		done <- result{ok, err}
	}()

	<-entered
	require.NoError(t, s.SaveAPIKey(models.ProviderOpenAI, "new"))
	close(release)
	r := <-done

	assert.False(t, r.ok)
	assert.ErrorIs(t, r.err, errs.ErrSuperseded)
	in, _ := s.IntegrationByProvider(models.ProviderOpenAI)
	assert.Equal(t, models.StatusConnected, in.Status, "stale failure must not mark the new key as broken")
}

func TestIntegrationStore_TestConnectionCancelled(t *testing.T) {
	s, p, _ := newTestIntegrationStore(t)
	require.NoError(t, s.SaveAPIKey(models.ProviderGoogle, "k"))

	ctx, cancel := context.WithCancel(context.Background())
	p.On("Probe", mock.Anything, models.ProviderGoogle, "k").
		Run(func(mock.Arguments) { cancel() }).
		Return(context.Canceled).Once()

	_, err := s.TestConnection(ctx, models.ProviderGoogle)
	assert.ErrorIs(t, err, context.Canceled)
	in, _ := s.IntegrationByProvider(models.ProviderGoogle)
	assert.Equal(t, models.StatusConnected, in.Status)
}

func TestIntegrationStore_DisableKeepsRecord(t *testing.T) {
	s, _, _ := newTestIntegrationStore(t)
	require.NoError(t, s.SaveAPIKey(models.ProviderOpenAI, "k"))
	require.NoError(t, s.DisableIntegration(models.ProviderOpenAI))

	in, ok := s.IntegrationByProvider(models.ProviderOpenAI)
	require.True(t, ok)
	assert.Equal(t, models.StatusDisconnected, in.Status)
	assert.Empty(t, in.APIKey)
	assert.Empty(t, in.ErrorMessage)

	require.NoError(t, s.SaveAPIKey(models.ProviderOpenAI, "k2"))
	assert.True(t, s.IsProviderConnected(models.ProviderOpenAI))
	assert.Len(t, s.Integrations(), 1)

	assert.ErrorIs(t, s.DisableIntegration(models.ProviderGoogle), errs.ErrNotFound)
}

func TestIntegrationStore_ConnectedModelsUseProviderOrder(t *testing.T) {
	s, _, _ := newTestIntegrationStore(t)
	require.NoError(t, s.SaveAPIKey(models.ProviderGoogle, "g"))
	require.NoError(t, s.SaveAPIKey(models.ProviderAnthropic, "a"))
	require.NoError(t, s.SaveAPIKey(models.ProviderOpenAI, "o"))
	require.NoError(t, s.DisableIntegration(models.ProviderAnthropic))

	got := s.ConnectedModels()
	require.Len(t, got, 2)
	assert.Equal(t, "model-gpt4o", got[0].ID)
	assert.Equal(t, "model-gemini", got[1].ID)
	assert.Equal(t, models.Position{X: 0, Y: -1, Z: 2}, got[1].Position)
}

func TestIntegrationStore_UpdateIntegrationStatus(t *testing.T) {
	s, _, _ := newTestIntegrationStore(t)
	assert.ErrorIs(t, s.UpdateIntegrationStatus(models.ProviderOpenAI, models.StatusError, "x"), errs.ErrNotFound)

	s.Load([]models.Integration{
		{ID: "i1", Provider: models.ProviderOpenAI, APIKey: "k", Status: models.StatusConnected},
		{ID: "dup", Provider: models.ProviderOpenAI, Status: models.StatusError},
	})
	assert.Len(t, s.Integrations(), 1)

	require.NoError(t, s.UpdateIntegrationStatus(models.ProviderOpenAI, models.StatusError, "quota"))
	in, _ := s.IntegrationByProvider(models.ProviderOpenAI)
	assert.Equal(t, "quota", in.ErrorMessage)
	assert.ErrorIs(t, s.UpdateIntegrationStatus(models.ProviderOpenAI, "weird", ""), errs.ErrInvalid)
}
