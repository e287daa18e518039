// Package hook defines the extension system for the workflow engine.
// Extensions are notified of lifecycle events (session started, stage
// completed, feedback submitted, etc.) and can react to them — logging,
// metrics, tracing, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/HACKMANV8/saga/session"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Session lifecycle hooks
// ──────────────────────────────────────────────────

// SessionStarted is called after a session is created and its first wave
// begins.
type SessionStarted interface {
	OnSessionStarted(ctx context.Context, ses *session.Session) error
}

// SessionCompleted is called after the final wave checkpoints and the
// session reaches its terminal completed status.
type SessionCompleted interface {
	OnSessionCompleted(ctx context.Context, ses *session.Session, elapsed time.Duration) error
}

// SessionFailed is called when a session fails terminally, such as on a
// persistence error.
type SessionFailed interface {
	OnSessionFailed(ctx context.Context, ses *session.Session, err error) error
}

// ──────────────────────────────────────────────────
// Stage lifecycle hooks
// ──────────────────────────────────────────────────

// StageCompleted is called after a stage generates and validates
// successfully.
type StageCompleted interface {
	OnStageCompleted(ctx context.Context, ses *session.Session, stage string, elapsed time.Duration) error
}

// StageFailed is called when a stage exhausts its retries within a wave.
type StageFailed interface {
	OnStageFailed(ctx context.Context, ses *session.Session, stage string, err error) error
}

// BatchCompleted is called after a whole wave merges and checkpoints.
type BatchCompleted interface {
	OnBatchCompleted(ctx context.Context, ses *session.Session, wave string, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// FeedbackSubmitted is called when feedback is accepted for a paused
// session, before regeneration begins.
type FeedbackSubmitted interface {
	OnFeedbackSubmitted(ctx context.Context, ses *session.Session, rec *session.FeedbackRecord) error
}

// Shutdown is called during graceful engine shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
