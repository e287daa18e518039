package session

import (
	"context"

	"github.com/HACKMANV8/saga/id"
)

// ListOpts controls pagination for session list queries.
type ListOpts struct {
	// Limit is the maximum number of sessions to return. Zero means no limit.
	Limit int
	// Offset is the number of sessions to skip.
	Offset int
	// Status filters by session status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for sessions, checkpoints,
// and feedback history. Implementations must support concurrent reads
// and atomic individual writes; per-session operation serialization is
// enforced by the engine, not the store.
type Store interface {
	// CreateSession persists a new session. Fails with
	// saga.ErrSessionExists if the ID is already present.
	CreateSession(ctx context.Context, ses *Session) error

	// GetSession retrieves a session by ID. Fails with
	// saga.ErrSessionNotFound if absent.
	GetSession(ctx context.Context, sessionID id.SessionID) (*Session, error)

	// UpdateSession persists changes to an existing session.
	UpdateSession(ctx context.Context, ses *Session) error

	// ListSessions returns sessions matching the given options, oldest
	// first.
	ListSessions(ctx context.Context, opts ListOpts) ([]*Session, error)

	// SaveCheckpoint durably appends a checkpoint. The write is
	// synchronous: when it returns nil the snapshot is persisted.
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error

	// LatestCheckpoint returns the most recent checkpoint for a session.
	// Fails with saga.ErrCheckpointNotFound if the session has none,
	// or saga.ErrSessionNotFound if the session does not exist.
	LatestCheckpoint(ctx context.Context, sessionID id.SessionID) (*Checkpoint, error)

	// GetCheckpoint returns a specific checkpoint.
	GetCheckpoint(ctx context.Context, sessionID id.SessionID, checkpointID id.CheckpointID) (*Checkpoint, error)

	// ListCheckpoints returns checkpoint metadata for a session in
	// creation order. State payloads are not loaded.
	ListCheckpoints(ctx context.Context, sessionID id.SessionID) ([]CheckpointMeta, error)

	// PruneCheckpoints removes all but the most recent keep checkpoints
	// for a session. keep <= 0 is a no-op.
	PruneCheckpoints(ctx context.Context, sessionID id.SessionID, keep int) error

	// AppendFeedback appends a feedback record to the session's history.
	AppendFeedback(ctx context.Context, rec *FeedbackRecord) error

	// ListFeedback returns the session's feedback history in submission
	// order.
	ListFeedback(ctx context.Context, sessionID id.SessionID) ([]*FeedbackRecord, error)

	// DeleteSession removes the session and all of its checkpoints and
	// feedback records. Irreversible.
	DeleteSession(ctx context.Context, sessionID id.SessionID) error

	// Migrate prepares backend schema or structures.
	Migrate(ctx context.Context) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
