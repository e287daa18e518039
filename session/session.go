// Package session defines workflow sessions, checkpoints, feedback
// records, and the persistence contract backing them.
package session

import (
	saga "github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/id"
)

// Status represents the lifecycle state of a session.
type Status string

const (
	// StatusActive means the session is in progress: either running a
	// batch or awaiting feedback.
	StatusActive Status = "active"
	// StatusCompleted means every stage finished and was approved.
	StatusCompleted Status = "completed"
	// StatusFailed means a fatal persistence error ended the session.
	StatusFailed Status = "failed"
	// StatusDeleted marks a session torn down by explicit request.
	StatusDeleted Status = "deleted"
)

// Terminal reports whether the status admits no further operations.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusDeleted
}

// Session is one workflow run: a topic being expanded into artifacts,
// stage by stage, with a human review pause after every batch. Owned
// exclusively by the engine.
type Session struct {
	saga.Entity

	ID    id.SessionID `json:"id"`
	Topic string       `json:"topic"`

	// Stage is the label of the current batch: a single stage name or
	// the "+"-joined names of a parallel wave.
	Stage string `json:"stage"`

	// Wave is the index of the current batch in the registry's wave
	// order. It advances only after the caller approves the batch.
	Wave int `json:"wave"`

	// AwaitingFeedback is true while the engine is suspended after a
	// successful batch, waiting for SubmitFeedback or Continue.
	AwaitingFeedback bool `json:"awaiting_feedback"`

	Status Status `json:"status"`

	// Error records the fatal cause for StatusFailed sessions.
	Error string `json:"error,omitempty"`
}
