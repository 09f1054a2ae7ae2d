package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-protocol/chimera/apps/state/internal/models"
)

// fakeProvider accepts requests carrying the expected credential header.
func fakeProvider(t *testing.T, path, header, prefix, key string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get(header) != prefix+key {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPProber(t *testing.T) {
	openai := fakeProvider(t, "/v1/models", "Authorization", "Bearer ", "sk-good")
	anthropic := fakeProvider(t, "/v1/models", "x-api-key", "", "ant-good")
	google := fakeProvider(t, "/v1beta/models", "x-goog-api-key", "", "g-good")

	p := NewHTTPProber(time.Second, map[models.Provider]string{
		models.ProviderOpenAI:    openai.URL,
		models.ProviderAnthropic: anthropic.URL,
		models.ProviderGoogle:    google.URL,
	})
	ctx := context.Background()

	require.NoError(t, p.Probe(ctx, models.ProviderOpenAI, "sk-good"))
	require.NoError(t, p.Probe(ctx, models.ProviderAnthropic, "ant-good"))
	require.NoError(t, p.Probe(ctx, models.ProviderGoogle, "g-good"))

	assert.ErrorIs(t, p.Probe(ctx, models.ProviderOpenAI, "sk-bad"), ErrRejected)
	assert.ErrorIs(t, p.Probe(ctx, models.ProviderGoogle, "nope"), ErrRejected)
	assert.Error(t, p.Probe(ctx, "mistral", "k"))
}

func TestHTTPProber_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPProber(time.Second, map[models.Provider]string{models.ProviderOpenAI: srv.URL})
	err := p.Probe(context.Background(), models.ProviderOpenAI, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "502")
}

func TestSimulated(t *testing.T) {
	ctx := context.Background()
	always := Simulated{SuccessRate: 0.8, Rand: func() float64 { return 0.1 }}
	never := Simulated{SuccessRate: 0.8, Rand: func() float64 { return 0.95 }}

	assert.NoError(t, always.Probe(ctx, models.ProviderOpenAI, "k"))
	assert.ErrorIs(t, never.Probe(ctx, models.ProviderOpenAI, "k"), ErrRejected)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := Simulated{Delay: time.Hour, SuccessRate: 1}.Probe(cancelled, models.ProviderOpenAI, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
