package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HACKMANV8/saga/hook"
	"github.com/HACKMANV8/saga/session"
)

// Compile-time interface checks.
var (
	_ hook.Extension         = (*Extension)(nil)
	_ hook.SessionStarted    = (*Extension)(nil)
	_ hook.SessionCompleted  = (*Extension)(nil)
	_ hook.SessionFailed     = (*Extension)(nil)
	_ hook.StageCompleted    = (*Extension)(nil)
	_ hook.StageFailed       = (*Extension)(nil)
	_ hook.BatchCompleted    = (*Extension)(nil)
	_ hook.FeedbackSubmitted = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so callers can bridge to any audit system with a
// RecorderFunc adapter at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges session lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the
// [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided
// Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Session lifecycle hooks ─────────────────────────

// OnSessionStarted implements hook.SessionStarted.
func (e *Extension) OnSessionStarted(ctx context.Context, ses *session.Session) error {
	return e.record(ctx, ActionSessionStarted, SeverityInfo, OutcomeSuccess,
		ResourceSession, ses.ID.String(), CategorySession, nil,
		"topic", ses.Topic,
	)
}

// OnSessionCompleted implements hook.SessionCompleted.
func (e *Extension) OnSessionCompleted(ctx context.Context, ses *session.Session, elapsed time.Duration) error {
	return e.record(ctx, ActionSessionCompleted, SeverityInfo, OutcomeSuccess,
		ResourceSession, ses.ID.String(), CategorySession, nil,
		"topic", ses.Topic,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnSessionFailed implements hook.SessionFailed.
func (e *Extension) OnSessionFailed(ctx context.Context, ses *session.Session, sesErr error) error {
	return e.record(ctx, ActionSessionFailed, SeverityCritical, OutcomeFailure,
		ResourceSession, ses.ID.String(), CategorySession, sesErr,
		"topic", ses.Topic,
		"stage", ses.Stage,
	)
}

// ── Stage lifecycle hooks ───────────────────────────

// OnStageCompleted implements hook.StageCompleted.
func (e *Extension) OnStageCompleted(ctx context.Context, ses *session.Session, stage string, elapsed time.Duration) error {
	return e.record(ctx, ActionStageCompleted, SeverityInfo, OutcomeSuccess,
		ResourceStage, stage, CategoryStage, nil,
		"session_id", ses.ID.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnStageFailed implements hook.StageFailed.
func (e *Extension) OnStageFailed(ctx context.Context, ses *session.Session, stage string, stageErr error) error {
	return e.record(ctx, ActionStageFailed, SeverityWarning, OutcomeFailure,
		ResourceStage, stage, CategoryStage, stageErr,
		"session_id", ses.ID.String(),
	)
}

// OnBatchCompleted implements hook.BatchCompleted.
func (e *Extension) OnBatchCompleted(ctx context.Context, ses *session.Session, wave string, elapsed time.Duration) error {
	return e.record(ctx, ActionBatchCompleted, SeverityInfo, OutcomeSuccess,
		ResourceStage, wave, CategoryStage, nil,
		"session_id", ses.ID.String(),
		"elapsed_ms", elapsed.Milliseconds(),
		"awaiting_feedback", ses.AwaitingFeedback,
	)
}

// ── Feedback lifecycle hooks ────────────────────────

// OnFeedbackSubmitted implements hook.FeedbackSubmitted.
func (e *Extension) OnFeedbackSubmitted(ctx context.Context, ses *session.Session, rec *session.FeedbackRecord) error {
	return e.record(ctx, ActionFeedbackSubmitted, SeverityInfo, OutcomeSuccess,
		ResourceSession, ses.ID.String(), CategoryFeedback, nil,
		"stage", rec.Stage,
		"feedback_id", rec.ID.String(),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
