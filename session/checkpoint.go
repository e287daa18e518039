package session

import (
	"time"

	"github.com/HACKMANV8/saga/id"
)

// Checkpoint is an immutable snapshot of the full workflow state taken
// after a successful batch. Checkpoints are only ever appended, and
// optionally pruned by retention policy; they are never mutated.
type Checkpoint struct {
	ID        id.CheckpointID `json:"id"`
	SessionID id.SessionID    `json:"session_id"`
	// Stage is the batch label at the time of the snapshot.
	Stage string `json:"stage"`
	// State is the serialized workflow state (state.State JSON).
	State     []byte    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// CheckpointMeta is a checkpoint without its state payload, for cheap
// history listings.
type CheckpointMeta struct {
	ID        id.CheckpointID `json:"id"`
	SessionID id.SessionID    `json:"session_id"`
	Stage     string          `json:"stage"`
	CreatedAt time.Time       `json:"created_at"`
}

// Meta returns the checkpoint's metadata view.
func (c *Checkpoint) Meta() CheckpointMeta {
	return CheckpointMeta{
		ID:        c.ID,
		SessionID: c.SessionID,
		Stage:     c.Stage,
		CreatedAt: c.CreatedAt,
	}
}
