// Package engine composes the saga subsystems into the workflow state
// machine: stage registry, executor, scheduler, session store, and the
// hook registry. It owns session lifecycle (start, feedback,
// continuation, deletion) and is the only writer of session records.
//
// This package exists to break the import cycle: the root saga package
// defines Entity and the error taxonomy (imported by session, stage,
// and the stores) and so cannot import those packages back. The engine
// package sits above all subsystem packages and below the application
// layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/backoff"
	"github.com/HACKMANV8/saga/executor"
	"github.com/HACKMANV8/saga/hook"
	"github.com/HACKMANV8/saga/id"
	"github.com/HACKMANV8/saga/observability"
	"github.com/HACKMANV8/saga/scheduler"
	"github.com/HACKMANV8/saga/session"
	"github.com/HACKMANV8/saga/stage"
	"github.com/HACKMANV8/saga/state"
)

// Engine is the top-level workflow state machine. One Engine serves
// many sessions concurrently; operations on the same session are
// serialized by a busy guard and fail fast with saga.ErrSessionBusy.
//
// The engine holds no goroutine between operations. A session
// suspended awaiting feedback can be resumed by any process holding
// the same store.
type Engine struct {
	registry *stage.Registry
	waves    [][]stage.Definition
	store    session.Store
	gen      saga.Generator
	cfg      saga.Config
	logger   *slog.Logger
	hooks    *hook.Registry
	exts     []hook.Extension
	bo       backoff.Strategy
	exec     *executor.Executor
	sched    *scheduler.Scheduler

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu   sync.Mutex
	busy map[string]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry sets the stage registry. Defaults to
// stage.DefaultRegistry (the narrative pipeline).
func WithRegistry(r *stage.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithConfig sets the engine configuration. Defaults to
// saga.DefaultConfig.
func WithConfig(cfg saga.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger for the engine and every subsystem it
// builds.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithExtension registers a lifecycle hook extension.
func WithExtension(ext hook.Extension) Option {
	return func(e *Engine) { e.exts = append(e.exts, ext) }
}

// WithBackoff sets the retry backoff strategy for stage execution.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is used.
func WithBackoff(bo backoff.Strategy) Option {
	return func(e *Engine) { e.bo = bo }
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing extension uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, the
// metrics extension uses this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New creates an Engine backed by the given store and generator. The
// registry's dependency graph is validated once here; a cycle is fatal
// to construction, never discovered per request.
//
// The engine takes ownership of the store: Close closes it. It does
// not run migrations; call store.Migrate before handing the store in.
func New(store session.Store, gen saga.Generator, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, saga.ErrNoStore
	}
	if gen == nil {
		return nil, saga.ErrNoGenerator
	}

	e := &Engine{
		store:  store,
		gen:    gen,
		cfg:    saga.DefaultConfig(),
		logger: slog.Default(),
		busy:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.registry == nil {
		r, err := stage.DefaultRegistry()
		if err != nil {
			return nil, err
		}
		e.registry = r
	}
	waves, err := e.registry.Waves()
	if err != nil {
		return nil, err
	}
	if len(waves) == 0 {
		return nil, fmt.Errorf("engine: registry has no stages")
	}
	e.waves = waves

	if e.bo == nil {
		e.bo = backoff.DefaultStrategy()
	}

	e.hooks = hook.NewRegistry(e.logger)

	var metricsExt *observability.MetricsExtension
	if e.meterProvider != nil {
		metricsExt, err = observability.NewMetricsExtensionWithProvider(e.meterProvider)
	} else {
		metricsExt, err = observability.NewMetricsExtension()
	}
	if err != nil {
		return nil, fmt.Errorf("engine: build metrics extension: %w", err)
	}
	e.hooks.Register(metricsExt)

	if e.tracerProvider != nil {
		e.hooks.Register(observability.NewTracingExtensionWithProvider(e.tracerProvider))
	} else {
		e.hooks.Register(observability.NewTracingExtension())
	}

	for _, ext := range e.exts {
		e.hooks.Register(ext)
	}

	e.exec = executor.New(e.registry, e.gen,
		executor.WithBackoff(e.bo),
		executor.WithLogger(e.logger),
		executor.WithTimeout(e.cfg.StageTimeout),
		executor.WithMaxRetries(e.cfg.MaxRetries),
		executor.WithModel(e.cfg.Model),
		executor.WithSampling(e.cfg.Temperature, e.cfg.Seed),
	)
	e.sched = scheduler.New(e.exec,
		scheduler.WithMaxWorkers(e.cfg.MaxWorkers),
		scheduler.WithLogger(e.logger),
	)

	return e, nil
}

// Extensions returns the registered hook extensions.
func (e *Engine) Extensions() []hook.Extension { return e.hooks.Extensions() }

// ── Operations ──

// Start creates a session for the topic, runs the first batch, and
// checkpoints. On success the session is suspended awaiting feedback
// for the first batch (or completed, if the registry has a single
// wave). On a recoverable generation failure no session is persisted;
// the caller simply starts again.
func (e *Engine) Start(ctx context.Context, topic, research string) (*session.Session, error) {
	if topic == "" {
		return nil, fmt.Errorf("engine: empty topic")
	}

	ses := &session.Session{
		Entity: saga.NewEntity(),
		ID:     id.NewSessionID(),
		Topic:  topic,
		Stage:  stage.WaveLabel(e.waves[0]),
		Status: session.StatusActive,
	}
	if err := e.acquire(ses.ID); err != nil {
		return nil, err
	}
	defer e.release(ses.ID)

	if err := e.store.CreateSession(ctx, ses); err != nil {
		return nil, &saga.PersistenceError{SessionID: ses.ID.String(), Stage: ses.Stage, Err: err}
	}
	e.hooks.EmitSessionStarted(ctx, ses)

	st := state.New(topic, research)
	if err := e.runBatch(ctx, ses, st, 0, ""); err != nil {
		// A recoverable first-batch failure rolls the machine back to
		// not-started: the session row is removed so a retry is a
		// clean Start. Persistence failures keep the row, marked
		// failed, for investigation.
		var perr *saga.PersistenceError
		if !errors.As(err, &perr) {
			if delErr := e.store.DeleteSession(ctx, ses.ID); delErr != nil {
				e.logger.Warn("failed to roll back session after first batch failure",
					slog.String("session_id", ses.ID.String()),
					slog.String("error", delErr.Error()),
				)
			}
		}
		return nil, err
	}
	return ses, nil
}

// SubmitFeedback appends a feedback record and reruns the current
// batch with the feedback injected into every stage's input
// projection. Each stage reuses its previous invocation tag, so the
// regenerated output replaces the batch's prior contribution instead
// of accumulating. The session stays awaiting feedback; advancing is
// always an explicit Continue.
func (e *Engine) SubmitFeedback(ctx context.Context, sessionID id.SessionID, text string) (*session.Session, error) {
	if text == "" {
		return nil, fmt.Errorf("engine: empty feedback")
	}
	if err := e.acquire(sessionID); err != nil {
		return nil, err
	}
	defer e.release(sessionID)

	ses, err := e.loadAwaiting(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rec := &session.FeedbackRecord{
		ID:        id.NewFeedbackID(),
		SessionID: ses.ID,
		Stage:     ses.Stage,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.AppendFeedback(ctx, rec); err != nil {
		return nil, e.fail(ctx, ses, ses.Stage, err)
	}
	e.hooks.EmitFeedbackSubmitted(ctx, ses, rec)

	st, err := e.loadState(ctx, ses)
	if err != nil {
		return nil, err
	}
	if err := e.runBatch(ctx, ses, st, ses.Wave, text); err != nil {
		return nil, err
	}
	return ses, nil
}

// Continue approves the current batch and advances to the next wave:
// runs it, checkpoints, and suspends awaiting feedback again. Running
// the final wave completes the session instead of suspending. On a
// recoverable failure the stored session is untouched and still
// awaiting the prior batch, so Continue can simply be retried.
func (e *Engine) Continue(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	if err := e.acquire(sessionID); err != nil {
		return nil, err
	}
	defer e.release(sessionID)

	ses, err := e.loadAwaiting(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	st, err := e.loadState(ctx, ses)
	if err != nil {
		return nil, err
	}
	if err := e.runBatch(ctx, ses, st, ses.Wave+1, ""); err != nil {
		return nil, err
	}
	return ses, nil
}

// Snapshot is the read-only view returned by GetState: session
// metadata, the state of the last fully successful batch, and the
// feedback history.
type Snapshot struct {
	Session    *session.Session
	State      *state.State
	Checkpoint session.CheckpointMeta
	Feedback   []*session.FeedbackRecord
}

// GetState returns the session's latest checkpointed state, metadata,
// and feedback history. It never blocks on generation and never
// observes a partially merged batch.
func (e *Engine) GetState(ctx context.Context, sessionID id.SessionID) (*Snapshot, error) {
	ses, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Session: ses}

	cp, err := e.store.LatestCheckpoint(ctx, sessionID)
	switch {
	case err == nil:
		snap.Checkpoint = cp.Meta()
		snap.State, err = state.Unmarshal(cp.State)
		if err != nil {
			return nil, fmt.Errorf("engine: decode checkpoint %s: %w", cp.ID, err)
		}
	case errors.Is(err, saga.ErrCheckpointNotFound):
		// No batch has completed yet.
	default:
		return nil, err
	}

	snap.Feedback, err = e.store.ListFeedback(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// History returns the session's checkpoint metadata in creation order,
// one entry per successful batch (initial, regeneration, or advance).
func (e *Engine) History(ctx context.Context, sessionID id.SessionID) ([]session.CheckpointMeta, error) {
	return e.store.ListCheckpoints(ctx, sessionID)
}

// ListSessions returns sessions matching the given options.
func (e *Engine) ListSessions(ctx context.Context, opts session.ListOpts) ([]*session.Session, error) {
	return e.store.ListSessions(ctx, opts)
}

// DeleteSession tears down the session with all of its checkpoints and
// feedback records. Irreversible.
func (e *Engine) DeleteSession(ctx context.Context, sessionID id.SessionID) error {
	if err := e.acquire(sessionID); err != nil {
		return err
	}
	defer e.release(sessionID)
	return e.store.DeleteSession(ctx, sessionID)
}

// Close notifies extensions of shutdown and closes the store.
func (e *Engine) Close(ctx context.Context) error {
	hookErr := e.hooks.EmitShutdown(ctx)
	if err := e.store.Close(); err != nil {
		return err
	}
	return hookErr
}

// ── Batch execution ──

// runBatch runs one wave against st, merges the results, checkpoints,
// and advances the session record. Recoverable failures leave both st's
// persisted predecessor and the session record untouched. Persistence
// failures mark the session failed and return *saga.PersistenceError.
func (e *Engine) runBatch(ctx context.Context, ses *session.Session, st *state.State, wave int, feedbackText string) error {
	defs := e.waves[wave]
	label := stage.WaveLabel(defs)

	invocations := make(map[string]id.InvocationID, len(defs))
	feedback := make(map[string]string, len(defs))
	for _, def := range defs {
		if feedbackText != "" {
			feedback[def.Name] = feedbackText
		}
		// Reuse the stage's previous invocation tag so a regeneration
		// replaces its own prior items under the provenance rule.
		if tag := st.Invocation(def.Name); tag != "" {
			inv, err := id.ParseInvocationID(tag)
			if err != nil {
				return fmt.Errorf("engine: session %s stage %q has malformed invocation tag %q: %w",
					ses.ID, def.Name, tag, err)
			}
			invocations[def.Name] = inv
		}
	}

	start := time.Now()
	results, err := e.sched.RunWave(ctx, defs, st, invocations, feedback)
	if err != nil {
		var batchErr *saga.BatchError
		if errors.As(err, &batchErr) {
			for _, genErr := range batchErr.Failed {
				e.hooks.EmitStageFailed(ctx, ses, genErr.Stage, genErr)
			}
		}
		e.logger.Warn("batch failed",
			slog.String("session_id", ses.ID.String()),
			slog.String("wave", label),
			slog.String("error", err.Error()),
		)
		return err
	}

	// Single-threaded merge after the join. Results arrive in registry
	// order, so the merged state is independent of completion order.
	for _, res := range results {
		def, ok := e.registry.Get(res.Update.Stage)
		if !ok {
			return fmt.Errorf("engine: %w: %q", saga.ErrStageNotFound, res.Update.Stage)
		}
		if err := st.Apply(def, res.Update); err != nil {
			return fmt.Errorf("engine: merge stage %q: %w", res.Update.Stage, err)
		}
		e.hooks.EmitStageCompleted(ctx, ses, res.Update.Stage, res.Elapsed)
	}

	data, err := st.Marshal()
	if err != nil {
		return e.fail(ctx, ses, label, err)
	}
	cp := &session.Checkpoint{
		ID:        id.NewCheckpointID(),
		SessionID: ses.ID,
		Stage:     label,
		State:     data,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
		return e.fail(ctx, ses, label, err)
	}
	if e.cfg.RetainCheckpoints > 0 {
		if err := e.store.PruneCheckpoints(ctx, ses.ID, e.cfg.RetainCheckpoints); err != nil {
			// Retention is housekeeping; the checkpoint itself is durable.
			e.logger.Warn("failed to prune checkpoints",
				slog.String("session_id", ses.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	final := wave == len(e.waves)-1
	ses.Wave = wave
	ses.Stage = label
	ses.AwaitingFeedback = !final
	if final {
		ses.Status = session.StatusCompleted
	}
	ses.Touch()
	if err := e.store.UpdateSession(ctx, ses); err != nil {
		return e.fail(ctx, ses, label, err)
	}

	e.hooks.EmitBatchCompleted(ctx, ses, label, time.Since(start))
	e.logger.Info("batch completed",
		slog.String("session_id", ses.ID.String()),
		slog.String("wave", label),
		slog.Bool("final", final),
	)
	if final {
		e.hooks.EmitSessionCompleted(ctx, ses, time.Since(ses.CreatedAt))
	}
	return nil
}

// fail transitions the session to failed after a persistence error and
// surfaces the error with session and stage context. The status write
// is best-effort: if the store is down it will fail too.
func (e *Engine) fail(ctx context.Context, ses *session.Session, label string, cause error) error {
	perr := &saga.PersistenceError{SessionID: ses.ID.String(), Stage: label, Err: cause}
	ses.Status = session.StatusFailed
	ses.AwaitingFeedback = false
	ses.Error = perr.Error()
	ses.Touch()
	if err := e.store.UpdateSession(ctx, ses); err != nil {
		e.logger.Error("failed to mark session failed",
			slog.String("session_id", ses.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	e.hooks.EmitSessionFailed(ctx, ses, perr)
	return perr
}

// loadAwaiting loads a session that must be suspended awaiting
// feedback. Terminal sessions admit no further operations.
func (e *Engine) loadAwaiting(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	ses, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ses.Status.Terminal() {
		return nil, fmt.Errorf("engine: session %s is %s: %w", ses.ID, ses.Status, saga.ErrSessionTerminal)
	}
	if !ses.AwaitingFeedback {
		return nil, fmt.Errorf("engine: session %s: %w", ses.ID, saga.ErrNotAwaitingFeedback)
	}
	return ses, nil
}

// loadState restores the workflow state of the session's last
// successful batch from its most recent checkpoint.
func (e *Engine) loadState(ctx context.Context, ses *session.Session) (*state.State, error) {
	cp, err := e.store.LatestCheckpoint(ctx, ses.ID)
	if err != nil {
		return nil, err
	}
	st, err := state.Unmarshal(cp.State)
	if err != nil {
		return nil, fmt.Errorf("engine: decode checkpoint %s: %w", cp.ID, err)
	}
	return st, nil
}

// ── Busy guard ──

// acquire marks the session as having an operation in flight. A second
// concurrent operation on the same session fails fast instead of
// interleaving.
func (e *Engine) acquire(sessionID id.SessionID) error {
	key := sessionID.String()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, inFlight := e.busy[key]; inFlight {
		return fmt.Errorf("engine: session %s: %w", key, saga.ErrSessionBusy)
	}
	e.busy[key] = struct{}{}
	return nil
}

func (e *Engine) release(sessionID id.SessionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.busy, sessionID.String())
}
