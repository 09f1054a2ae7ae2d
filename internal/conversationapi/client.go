package conversationapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
	"github.com/chimera-protocol/chimera/apps/state/internal/models"
)

// ErrUnavailable is returned while the circuit breaker refuses calls.
var ErrUnavailable = errors.New("conversation service unavailable")

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("conversation service: status %d", e.StatusCode)
	}
	return fmt.Sprintf("conversation service: status %d: %s", e.StatusCode, e.Message)
}

// BreakerConfig tunes the client's circuit breaker.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Breaker BreakerConfig
}

// Client talks to a remote conversation service over JSON/HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	tracer  trace.Tracer
	log     *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	bc := cfg.Breaker
	if bc == (BreakerConfig{}) {
		bc = DefaultBreakerConfig()
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		tracer:  otel.Tracer("chimera.conversationapi"),
		log:     log,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "conversation-api",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		// Client errors and cancellations say nothing about service health.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var se *StatusError
			return errors.As(err, &se) && se.StatusCode < 500
		},
	})
	return c
}

// BreakerState reports the circuit breaker state ("closed", "open", "half-open").
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

func (c *Client) ListConversations(ctx context.Context, workspaceID string) ([]models.ConversationRecord, error) {
	var out models.ConversationList
	err := c.do(ctx, "ListConversations", http.MethodGet, "/workspaces/"+url.PathEscape(workspaceID)+"/conversations", nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) CreateConversation(ctx context.Context, workspaceID, title, modelID string) (models.ConversationRecord, error) {
	var out models.ConversationRecord
	body := createRequest{WorkspaceID: workspaceID, Title: title, ModelID: modelID}
	err := c.do(ctx, "CreateConversation", http.MethodPost, "/conversations", body, &out)
	return out, err
}

func (c *Client) GetConversation(ctx context.Context, id string) (models.ConversationRecord, error) {
	var out models.ConversationRecord
	err := c.do(ctx, "GetConversation", http.MethodGet, conversationPath(id), nil, &out)
	return out, err
}

func (c *Client) UpdateConversation(ctx context.Context, id string, upd models.ConversationUpdate) (models.ConversationRecord, error) {
	var out models.ConversationRecord
	err := c.do(ctx, "UpdateConversation", http.MethodPatch, conversationPath(id), upd, &out)
	return out, err
}

func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, "DeleteConversation", http.MethodDelete, conversationPath(id), nil, nil)
}

func (c *Client) SendMessage(ctx context.Context, conversationID, content string, wantAIResponse bool) (models.SendMessageResult, error) {
	var out models.SendMessageResult
	body := sendRequest{Content: content, GetAIResponse: wantAIResponse}
	err := c.do(ctx, "SendMessage", http.MethodPost, conversationPath(conversationID)+"/messages", body, &out)
	return out, err
}

func (c *Client) UpdateMessage(ctx context.Context, conversationID, messageID string, upd models.MessageUpdate) (models.MessageRecord, error) {
	var out models.MessageRecord
	err := c.do(ctx, "UpdateMessage", http.MethodPatch, messagePath(conversationID, messageID), upd, &out)
	return out, err
}

func (c *Client) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	return c.do(ctx, "DeleteMessage", http.MethodDelete, messagePath(conversationID, messageID), nil, nil)
}

func (c *Client) InjectMemory(ctx context.Context, conversationID, memoryID string) error {
	return c.do(ctx, "InjectMemory", http.MethodPost, conversationPath(conversationID)+"/memories", injectRequest{MemoryID: memoryID}, nil)
}

func (c *Client) RemoveInjectedMemory(ctx context.Context, conversationID, memoryID string) error {
	path := conversationPath(conversationID) + "/memories/" + url.PathEscape(memoryID)
	return c.do(ctx, "RemoveInjectedMemory", http.MethodDelete, path, nil, nil)
}

func conversationPath(id string) string {
	return "/conversations/" + url.PathEscape(id)
}

func messagePath(conversationID, messageID string) string {
	return conversationPath(conversationID) + "/messages/" + url.PathEscape(messageID)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "conversationapi."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, op+" failed")
		}
		span.End()
	}()

	_, err = c.cb.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.log.Warn("conversation service call rejected", "op", op, "state", c.cb.State().String())
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{StatusCode: resp.StatusCode}
		var eb errorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			se.Message = eb.Error
		} else {
			se.Message = strings.TrimSpace(string(raw))
		}
		return se
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
