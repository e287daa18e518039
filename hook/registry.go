package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/HACKMANV8/saga/session"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type sessionStartedEntry struct {
	name string
	hook SessionStarted
}

type sessionCompletedEntry struct {
	name string
	hook SessionCompleted
}

type sessionFailedEntry struct {
	name string
	hook SessionFailed
}

type stageCompletedEntry struct {
	name string
	hook StageCompleted
}

type stageFailedEntry struct {
	name string
	hook StageFailed
}

type batchCompletedEntry struct {
	name string
	hook BatchCompleted
}

type feedbackSubmittedEntry struct {
	name string
	hook FeedbackSubmitted
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	sessionStarted    []sessionStartedEntry
	sessionCompleted  []sessionCompletedEntry
	sessionFailed     []sessionFailedEntry
	stageCompleted    []stageCompletedEntry
	stageFailed       []stageFailedEntry
	batchCompleted    []batchCompletedEntry
	feedbackSubmitted []feedbackSubmittedEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(SessionStarted); ok {
		r.sessionStarted = append(r.sessionStarted, sessionStartedEntry{name, h})
	}
	if h, ok := e.(SessionCompleted); ok {
		r.sessionCompleted = append(r.sessionCompleted, sessionCompletedEntry{name, h})
	}
	if h, ok := e.(SessionFailed); ok {
		r.sessionFailed = append(r.sessionFailed, sessionFailedEntry{name, h})
	}
	if h, ok := e.(StageCompleted); ok {
		r.stageCompleted = append(r.stageCompleted, stageCompletedEntry{name, h})
	}
	if h, ok := e.(StageFailed); ok {
		r.stageFailed = append(r.stageFailed, stageFailedEntry{name, h})
	}
	if h, ok := e.(BatchCompleted); ok {
		r.batchCompleted = append(r.batchCompleted, batchCompletedEntry{name, h})
	}
	if h, ok := e.(FeedbackSubmitted); ok {
		r.feedbackSubmitted = append(r.feedbackSubmitted, feedbackSubmittedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitSessionStarted notifies all extensions that implement SessionStarted.
func (r *Registry) EmitSessionStarted(ctx context.Context, ses *session.Session) {
	for _, e := range r.sessionStarted {
		if err := e.hook.OnSessionStarted(ctx, ses); err != nil {
			r.logHookError("OnSessionStarted", e.name, err)
		}
	}
}

// EmitSessionCompleted notifies all extensions that implement
// SessionCompleted.
func (r *Registry) EmitSessionCompleted(ctx context.Context, ses *session.Session, elapsed time.Duration) {
	for _, e := range r.sessionCompleted {
		if err := e.hook.OnSessionCompleted(ctx, ses, elapsed); err != nil {
			r.logHookError("OnSessionCompleted", e.name, err)
		}
	}
}

// EmitSessionFailed notifies all extensions that implement SessionFailed.
func (r *Registry) EmitSessionFailed(ctx context.Context, ses *session.Session, sesErr error) {
	for _, e := range r.sessionFailed {
		if err := e.hook.OnSessionFailed(ctx, ses, sesErr); err != nil {
			r.logHookError("OnSessionFailed", e.name, err)
		}
	}
}

// EmitStageCompleted notifies all extensions that implement StageCompleted.
func (r *Registry) EmitStageCompleted(ctx context.Context, ses *session.Session, stage string, elapsed time.Duration) {
	for _, e := range r.stageCompleted {
		if err := e.hook.OnStageCompleted(ctx, ses, stage, elapsed); err != nil {
			r.logHookError("OnStageCompleted", e.name, err)
		}
	}
}

// EmitStageFailed notifies all extensions that implement StageFailed.
func (r *Registry) EmitStageFailed(ctx context.Context, ses *session.Session, stage string, stageErr error) {
	for _, e := range r.stageFailed {
		if err := e.hook.OnStageFailed(ctx, ses, stage, stageErr); err != nil {
			r.logHookError("OnStageFailed", e.name, err)
		}
	}
}

// EmitBatchCompleted notifies all extensions that implement BatchCompleted.
func (r *Registry) EmitBatchCompleted(ctx context.Context, ses *session.Session, wave string, elapsed time.Duration) {
	for _, e := range r.batchCompleted {
		if err := e.hook.OnBatchCompleted(ctx, ses, wave, elapsed); err != nil {
			r.logHookError("OnBatchCompleted", e.name, err)
		}
	}
}

// EmitFeedbackSubmitted notifies all extensions that implement
// FeedbackSubmitted.
func (r *Registry) EmitFeedbackSubmitted(ctx context.Context, ses *session.Session, rec *session.FeedbackRecord) {
	for _, e := range r.feedbackSubmitted {
		if err := e.hook.OnFeedbackSubmitted(ctx, ses, rec); err != nil {
			r.logHookError("OnFeedbackSubmitted", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
// Unlike the other emitters it returns the first error, since shutdown
// failures matter to the caller.
func (r *Registry) EmitShutdown(ctx context.Context) error {
	var firstErr error
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// logHookError logs a hook failure without propagating it. A misbehaving
// extension must not break the engine's lifecycle.
func (r *Registry) logHookError(hookName, extName string, err error) {
	r.logger.Warn("extension hook failed",
		slog.String("hook", hookName),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
