package session

import (
	"time"

	"github.com/HACKMANV8/saga/id"
)

// FeedbackRecord is one reviewer feedback submission. Records form an
// append-only, session-scoped history; they are never mutated or
// removed except by deleting the whole session.
type FeedbackRecord struct {
	ID        id.FeedbackID `json:"id"`
	SessionID id.SessionID  `json:"session_id"`
	// Stage is the batch label the feedback applied to.
	Stage     string    `json:"stage"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
