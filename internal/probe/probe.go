// Package probe checks provider API keys for the integration store.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chimera-protocol/chimera/apps/state/internal/models"
)

// ErrRejected means the provider answered but refused the key.
var ErrRejected = errors.New("api key rejected")

// Default provider endpoints. Each lists models, which any valid key may do.
const (
	DefaultOpenAIURL    = "https://api.openai.com"
	DefaultAnthropicURL = "https://api.anthropic.com"
	DefaultGoogleURL    = "https://generativelanguage.googleapis.com"
)

// HTTPProber calls each provider's model-listing endpoint with the key.
type HTTPProber struct {
	client *http.Client
	urls   map[models.Provider]string
	tracer trace.Tracer
}

// NewHTTPProber builds a prober; zero values in urls fall back to the
// public endpoints.
func NewHTTPProber(timeout time.Duration, urls map[models.Provider]string) *HTTPProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	resolved := map[models.Provider]string{
		models.ProviderOpenAI:    DefaultOpenAIURL,
		models.ProviderAnthropic: DefaultAnthropicURL,
		models.ProviderGoogle:    DefaultGoogleURL,
	}
	for p, u := range urls {
		if u != "" {
			resolved[p] = u
		}
	}
	return &HTTPProber{
		client: &http.Client{Timeout: timeout},
		urls:   resolved,
		tracer: otel.Tracer("chimera.probe"),
	}
}

func (p *HTTPProber) Probe(ctx context.Context, provider models.Provider, apiKey string) (err error) {
	ctx, span := p.tracer.Start(ctx, "probe.Probe",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("provider", string(provider))),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "probe failed")
		}
		span.End()
	}()

	req, err := p.buildRequest(ctx, provider, apiKey)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", provider, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("probe %s: %w (status %d)", provider, ErrRejected, resp.StatusCode)
	default:
		return fmt.Errorf("probe %s: unexpected status %d", provider, resp.StatusCode)
	}
}

func (p *HTTPProber) buildRequest(ctx context.Context, provider models.Provider, apiKey string) (*http.Request, error) {
	base, ok := p.urls[provider]
	if !ok {
		return nil, fmt.Errorf("probe: unknown provider %q", provider)
	}

	var path string
	switch provider {
	case models.ProviderOpenAI, models.ProviderAnthropic:
		path = "/v1/models"
	case models.ProviderGoogle:
		path = "/v1beta/models"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", provider, err)
	}
	switch provider {
	case models.ProviderOpenAI:
		req.Header.Set("Authorization", "Bearer "+apiKey)
	case models.ProviderAnthropic:
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	case models.ProviderGoogle:
		req.Header.Set("x-goog-api-key", apiKey)
	}
	return req, nil
}

// Simulated accepts a key with probability SuccessRate after Delay.
type Simulated struct {
	Delay       time.Duration
	SuccessRate float64
	// Rand returns a value in [0, 1); nil uses math/rand.
	Rand func() float64
}

func (s Simulated) Probe(ctx context.Context, provider models.Provider, apiKey string) error {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	r := s.Rand
	if r == nil {
		r = rand.Float64
	}
	if r() < s.SuccessRate {
		return nil
	}
	return fmt.Errorf("probe %s: %w", provider, ErrRejected)
}
