package notifyhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/HACKMANV8/saga/hook"
	"github.com/HACKMANV8/saga/session"
)

// Compile-time interface checks.
var (
	_ hook.Extension        = (*Extension)(nil)
	_ hook.SessionStarted   = (*Extension)(nil)
	_ hook.SessionCompleted = (*Extension)(nil)
	_ hook.SessionFailed    = (*Extension)(nil)
	_ hook.BatchCompleted   = (*Extension)(nil)
)

// Session lifecycle event types delivered to the webhook endpoint.
const (
	EventSessionStarted   = "saga.session.started"
	EventReviewRequested  = "saga.review.requested"
	EventSessionCompleted = "saga.session.completed"
	EventSessionFailed    = "saga.session.failed"
)

// AllEvents returns every event type this extension can deliver.
func AllEvents() []string {
	return []string{
		EventSessionStarted,
		EventReviewRequested,
		EventSessionCompleted,
		EventSessionFailed,
	}
}

// Envelope is the JSON body POSTed to the webhook endpoint.
type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Extension POSTs session lifecycle events to a webhook endpoint.
// Delivery failures are logged, never propagated: a down endpoint must
// not stall the workflow.
type Extension struct {
	endpoint string
	client   *http.Client
	headers  map[string]string
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension delivering events to the given endpoint.
func New(endpoint string, opts ...Option) *Extension {
	e := &Extension{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "notify-hook" }

// OnSessionStarted implements hook.SessionStarted.
func (e *Extension) OnSessionStarted(ctx context.Context, ses *session.Session) error {
	return e.send(ctx, EventSessionStarted, newSessionPayload(ses))
}

// OnBatchCompleted implements hook.BatchCompleted. A completed batch
// that leaves the session suspended is the review request; the final
// batch completes the session instead and is reported by
// OnSessionCompleted.
func (e *Extension) OnBatchCompleted(ctx context.Context, ses *session.Session, wave string, elapsed time.Duration) error {
	if !ses.AwaitingFeedback {
		return nil
	}
	return e.send(ctx, EventReviewRequested, &reviewPayload{
		sessionPayload: *newSessionPayload(ses),
		Wave:           wave,
		ElapsedMs:      elapsed.Milliseconds(),
	})
}

// OnSessionCompleted implements hook.SessionCompleted.
func (e *Extension) OnSessionCompleted(ctx context.Context, ses *session.Session, elapsed time.Duration) error {
	return e.send(ctx, EventSessionCompleted, &completedPayload{
		sessionPayload: *newSessionPayload(ses),
		ElapsedMs:      elapsed.Milliseconds(),
	})
}

// OnSessionFailed implements hook.SessionFailed.
func (e *Extension) OnSessionFailed(ctx context.Context, ses *session.Session, sesErr error) error {
	return e.send(ctx, EventSessionFailed, &failedPayload{
		sessionPayload: *newSessionPayload(ses),
		Error:          sesErr.Error(),
	})
}

// ── Internal helpers ────────────────────────────────

// send POSTs one event envelope if the event type is enabled.
func (e *Extension) send(ctx context.Context, eventType string, data any) error {
	if e.enabled != nil && !e.enabled[eventType] {
		return nil
	}

	body, err := json.Marshal(&Envelope{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("notify_hook: marshal %s: %w", eventType, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify_hook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn("notify_hook: webhook delivery failed",
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
		return nil
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 300 {
		e.logger.Warn("notify_hook: webhook rejected event",
			slog.String("event", eventType),
			slog.Int("status", resp.StatusCode),
		)
	}
	return nil
}

// ── Default payload types ───────────────────────────

type sessionPayload struct {
	SessionID string `json:"session_id"`
	Topic     string `json:"topic"`
	Stage     string `json:"stage"`
	Status    string `json:"status"`
}

func newSessionPayload(ses *session.Session) *sessionPayload {
	return &sessionPayload{
		SessionID: ses.ID.String(),
		Topic:     ses.Topic,
		Stage:     ses.Stage,
		Status:    string(ses.Status),
	}
}

type reviewPayload struct {
	sessionPayload
	Wave      string `json:"wave"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type completedPayload struct {
	sessionPayload
	ElapsedMs int64 `json:"elapsed_ms"`
}

type failedPayload struct {
	sessionPayload
	Error string `json:"error"`
}
