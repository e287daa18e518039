// Package executor runs a single stage generation — building the stage's
// input projection, invoking the generator with retry and backoff, and
// validating the output into a state update.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/artifact"
	"github.com/HACKMANV8/saga/backoff"
	"github.com/HACKMANV8/saga/id"
	"github.com/HACKMANV8/saga/stage"
	"github.com/HACKMANV8/saga/state"
)

// Executor invokes the generator for one stage at a time. It projects the
// stage's declared inputs from accumulated state, retries transient
// failures with backoff, and normalizes output through artifact validation.
type Executor struct {
	registry    *stage.Registry
	gen         saga.Generator
	backoff     backoff.Strategy
	logger      *slog.Logger
	timeout     time.Duration
	maxRetries  int
	model       string
	temperature float32
	seed        int
}

// Option configures the Executor.
type Option func(*Executor)

// WithBackoff sets the retry delay strategy.
func WithBackoff(bo backoff.Strategy) Option {
	return func(e *Executor) { e.backoff = bo }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithTimeout sets the per-attempt generation timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithMaxRetries sets how many times a failed attempt is retried.
func WithMaxRetries(n int) Option {
	return func(e *Executor) { e.maxRetries = n }
}

// WithModel sets the model identifier passed through to the generator.
func WithModel(model string) Option {
	return func(e *Executor) { e.model = model }
}

// WithSampling sets the temperature and seed passed through to the
// generator.
func WithSampling(temperature float32, seed int) Option {
	return func(e *Executor) { e.temperature = temperature; e.seed = seed }
}

// New creates an Executor wrapping the given generator. Prerequisite
// outputs are resolved against the given registry.
func New(registry *stage.Registry, gen saga.Generator, opts ...Option) *Executor {
	e := &Executor{
		registry:   registry,
		gen:        gen,
		backoff:    backoff.DefaultStrategy(),
		logger:     slog.Default(),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run generates the given stage and returns the validated state update
// tagged with the invocation ID. Failed attempts are retried with backoff
// up to the configured limit; if every attempt fails the last error is
// returned as a *saga.GenerationError.
func (e *Executor) Run(ctx context.Context, def stage.Definition, st *state.State, invocation id.InvocationID, feedback string) (state.Update, error) {
	req, err := e.buildRequest(def, st, feedback)
	if err != nil {
		return state.Update{}, &saga.GenerationError{Stage: def.Name, Err: err}
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.backoff.Delay(attempt)
			e.logger.Warn("retrying stage generation",
				slog.String("stage", def.Name),
				slog.Int("attempt", attempt),
				slog.Int("max_retries", e.maxRetries),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return state.Update{}, &saga.GenerationError{Stage: def.Name, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		upd, attemptErr := e.attempt(ctx, def, req, invocation)
		if attemptErr == nil {
			return upd, nil
		}
		lastErr = attemptErr

		if ctx.Err() != nil {
			break
		}
	}

	return state.Update{}, &saga.GenerationError{Stage: def.Name, Err: lastErr}
}

// attempt runs one generation call and validates its output.
func (e *Executor) attempt(ctx context.Context, def stage.Definition, req saga.Request, invocation id.InvocationID) (state.Update, error) {
	attemptCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := e.gen.Generate(attemptCtx, req)
	if err != nil {
		return state.Update{}, fmt.Errorf("generate: %w", err)
	}

	upd := state.Update{
		Stage:      def.Name,
		Invocation: invocation.String(),
	}

	switch def.Merge {
	case stage.MergeReplace:
		doc, decErr := artifact.DecodeDoc(def.Output, raw)
		if decErr != nil {
			return state.Update{}, fmt.Errorf("validate output: %w", decErr)
		}
		upd.Doc = doc
	case stage.MergeAppendUnique:
		items, decErr := artifact.DecodeList(def.Output, raw)
		if decErr != nil {
			return state.Update{}, fmt.Errorf("validate output: %w", decErr)
		}
		upd.Items = items
	default:
		return state.Update{}, fmt.Errorf("unknown merge kind %q", def.Merge)
	}

	e.logger.Info("stage generated",
		slog.String("stage", def.Name),
		slog.String("invocation", invocation.String()),
		slog.Duration("elapsed", time.Since(start)),
	)

	return upd, nil
}

// buildRequest projects the stage's inputs from accumulated state. Only the
// topic, research notes, and the outputs of declared prerequisites are
// exposed to the generator.
func (e *Executor) buildRequest(def stage.Definition, st *state.State, feedback string) (saga.Request, error) {
	inputs := make(map[string]json.RawMessage, len(def.Requires))
	for _, dep := range def.Requires {
		depDef, ok := e.registry.Get(dep)
		if !ok {
			return saga.Request{}, fmt.Errorf("unknown prerequisite %q: %w", dep, saga.ErrStageNotFound)
		}
		out, ok := st.Output(depDef)
		if !ok {
			return saga.Request{}, fmt.Errorf("missing input %q", dep)
		}
		inputs[dep] = out
	}

	return saga.Request{
		Stage:       def.Name,
		Topic:       st.Topic,
		Research:    st.Research,
		Inputs:      inputs,
		Feedback:    feedback,
		Model:       e.model,
		Temperature: e.temperature,
		Seed:        e.seed,
	}, nil
}
