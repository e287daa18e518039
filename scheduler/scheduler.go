// Package scheduler runs one wave of independent stages with bounded
// concurrency. Stages in a wave never depend on each other, so they run in
// parallel; a stage failure does not cancel its siblings. Failed stages get
// one sequential retry pass before the wave is reported as a batch failure.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/executor"
	"github.com/HACKMANV8/saga/id"
	"github.com/HACKMANV8/saga/stage"
	"github.com/HACKMANV8/saga/state"
)

// Scheduler executes stage waves through an Executor.
type Scheduler struct {
	exec       *executor.Executor
	maxWorkers int
	logger     *slog.Logger
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithMaxWorkers bounds how many stages run concurrently within a wave.
func WithMaxWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Result is one stage's successful outcome within a wave.
type Result struct {
	Update  state.Update
	Elapsed time.Duration
}

// New creates a Scheduler.
func New(exec *executor.Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		exec:       exec,
		maxWorkers: 3,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunWave executes every stage in the wave and returns the successful
// results in registry order. invocations supplies the provenance tag for
// each stage; feedback supplies optional per-stage revision text.
//
// The wave result is deterministic regardless of completion order: results
// are returned sorted by stage ordinal. If any stage still fails after the
// sequential retry pass, the successful results are returned alongside a
// *saga.BatchError naming the failures. State is never mutated here; the
// caller decides whether to apply the updates.
func (s *Scheduler) RunWave(ctx context.Context, defs []stage.Definition, st *state.State, invocations map[string]id.InvocationID, feedback map[string]string) ([]Result, error) {
	if len(defs) == 0 {
		return nil, nil
	}

	// Registry order, independent of map iteration or goroutine timing.
	ordered := make([]stage.Definition, len(defs))
	copy(ordered, defs)
	sort.Slice(ordered, func(i, k int) bool {
		return ordered[i].Ordinal < ordered[k].Ordinal
	})

	results := make([]Result, len(ordered))
	failures := make([]*saga.GenerationError, len(ordered))

	if len(ordered) == 1 {
		// Single-stage waves run inline; no goroutine overhead.
		results[0], failures[0] = s.runStage(ctx, ordered[0], st, invocations, feedback)
	} else {
		s.logger.Info("wave starting",
			slog.String("wave", stage.WaveLabel(ordered)),
			slog.Int("stages", len(ordered)),
			slog.Int("workers", s.maxWorkers),
		)

		// Plain errgroup, not WithContext: a failing stage must not
		// cancel the siblings already in flight. Failures are collected
		// per slot instead of through the group error.
		var g errgroup.Group
		g.SetLimit(s.maxWorkers)
		for i, def := range ordered {
			g.Go(func() error {
				results[i], failures[i] = s.runStage(ctx, def, st, invocations, feedback)
				return nil
			})
		}
		g.Wait() //nolint:errcheck
	}

	// Sequential retry pass over the stages that failed, in order.
	for i, genErr := range failures {
		if genErr == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		s.logger.Warn("retrying failed stage sequentially",
			slog.String("stage", ordered[i].Name),
			slog.String("error", genErr.Error()),
		)
		results[i], failures[i] = s.runStage(ctx, ordered[i], st, invocations, feedback)
	}

	var failed []*saga.GenerationError
	succeeded := make([]Result, 0, len(ordered))
	for i, genErr := range failures {
		if genErr != nil {
			failed = append(failed, genErr)
			continue
		}
		succeeded = append(succeeded, results[i])
	}

	if len(failed) > 0 {
		return succeeded, &saga.BatchError{Failed: failed}
	}
	return succeeded, nil
}

func (s *Scheduler) runStage(ctx context.Context, def stage.Definition, st *state.State, invocations map[string]id.InvocationID, feedback map[string]string) (Result, *saga.GenerationError) {
	inv, ok := invocations[def.Name]
	if !ok || inv.IsNil() {
		inv = id.NewInvocationID()
	}

	start := time.Now()
	upd, err := s.exec.Run(ctx, def, st, inv, feedback[def.Name])
	if err == nil {
		return Result{Update: upd, Elapsed: time.Since(start)}, nil
	}

	var genErr *saga.GenerationError
	if !errors.As(err, &genErr) {
		genErr = &saga.GenerationError{Stage: def.Name, Err: err}
	}
	return Result{}, genErr
}
