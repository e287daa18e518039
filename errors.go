package saga

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Store errors.
	ErrNoStore     = errors.New("saga: no store configured")
	ErrNoGenerator = errors.New("saga: no generator configured")
	ErrStoreClosed = errors.New("saga: store closed")

	// Registry errors.
	ErrCyclicDependency = errors.New("saga: cyclic stage dependency")
	ErrStageNotFound    = errors.New("saga: stage not found")
	ErrDuplicateStage   = errors.New("saga: duplicate stage")

	// Not found errors.
	ErrSessionNotFound    = errors.New("saga: session not found")
	ErrCheckpointNotFound = errors.New("saga: checkpoint not found")

	// Conflict errors.
	ErrSessionExists = errors.New("saga: session already exists")

	// Session state errors.
	ErrSessionBusy         = errors.New("saga: session busy")
	ErrSessionTerminal     = errors.New("saga: session in terminal state")
	ErrNotAwaitingFeedback = errors.New("saga: session not awaiting feedback")
)

// GenerationError reports a single stage's generation failure. It is
// recoverable: the session stays in its prior awaiting state and the
// caller may retry the operation or adjust feedback.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("saga: stage %q generation failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// BatchError reports the stages of a parallel batch that still failed
// after the sequential retry pass. No checkpoint is written for a
// partially failed batch.
type BatchError struct {
	Failed []*GenerationError
}

func (e *BatchError) Error() string {
	names := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		names[i] = f.Stage
	}
	return fmt.Sprintf("saga: batch failed for stages [%s]", strings.Join(names, ", "))
}

// Stages returns the names of the stages that failed.
func (e *BatchError) Stages() []string {
	names := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		names[i] = f.Stage
	}
	return names
}

// PersistenceError reports a checkpoint or session write failure. It is
// fatal for the session: the engine transitions it to StatusFailed.
type PersistenceError struct {
	SessionID string
	Stage     string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("saga: persistence failed for session %s at stage %q: %v",
		e.SessionID, e.Stage, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
