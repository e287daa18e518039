package postgres

import (
	"context"
	"fmt"

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/id"
	"github.com/HACKMANV8/saga/session"
)

// SaveCheckpoint durably appends a checkpoint.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *session.Checkpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO saga_checkpoints (id, session_id, stage, state, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		cp.ID, cp.SessionID, cp.Stage, cp.State, cp.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return saga.ErrSessionNotFound
		}
		return fmt.Errorf("saga/postgres: save checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the most recent checkpoint for a session.
func (s *Store) LatestCheckpoint(ctx context.Context, sessionID id.SessionID) (*session.Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, session_id, stage, state, created_at
		FROM saga_checkpoints WHERE session_id = $1
		ORDER BY seq DESC LIMIT 1`, sessionID)

	var cp session.Checkpoint
	err := row.Scan(&cp.ID, &cp.SessionID, &cp.Stage, &cp.State, &cp.CreatedAt)
	if isNoRows(err) {
		if existsErr := s.sessionExists(ctx, sessionID); existsErr != nil {
			return nil, existsErr
		}
		return nil, saga.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("saga/postgres: latest checkpoint: %w", err)
	}
	return &cp, nil
}

// GetCheckpoint retrieves a specific checkpoint.
func (s *Store) GetCheckpoint(ctx context.Context, sessionID id.SessionID, checkpointID id.CheckpointID) (*session.Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, session_id, stage, state, created_at
		FROM saga_checkpoints WHERE session_id = $1 AND id = $2`,
		sessionID, checkpointID)

	var cp session.Checkpoint
	err := row.Scan(&cp.ID, &cp.SessionID, &cp.Stage, &cp.State, &cp.CreatedAt)
	if isNoRows(err) {
		if existsErr := s.sessionExists(ctx, sessionID); existsErr != nil {
			return nil, existsErr
		}
		return nil, saga.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("saga/postgres: get checkpoint: %w", err)
	}
	return &cp, nil
}

// ListCheckpoints returns checkpoint metadata for a session in creation
// order.
func (s *Store) ListCheckpoints(ctx context.Context, sessionID id.SessionID) ([]session.CheckpointMeta, error) {
	if err := s.sessionExists(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, stage, created_at
		FROM saga_checkpoints WHERE session_id = $1
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("saga/postgres: list checkpoints: %w", err)
	}
	defer rows.Close()

	var metas []session.CheckpointMeta
	for rows.Next() {
		var meta session.CheckpointMeta
		if err := rows.Scan(&meta.ID, &meta.SessionID, &meta.Stage, &meta.CreatedAt); err != nil {
			return nil, fmt.Errorf("saga/postgres: scan checkpoint meta: %w", err)
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("saga/postgres: list checkpoints rows: %w", err)
	}
	return metas, nil
}

// PruneCheckpoints removes all but the most recent keep checkpoints.
func (s *Store) PruneCheckpoints(ctx context.Context, sessionID id.SessionID, keep int) error {
	if keep <= 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		DELETE FROM saga_checkpoints
		WHERE session_id = $1 AND id NOT IN (
			SELECT id FROM saga_checkpoints WHERE session_id = $1
			ORDER BY seq DESC LIMIT $2
		)`, sessionID, keep)
	if err != nil {
		return fmt.Errorf("saga/postgres: prune checkpoints: %w", err)
	}
	return nil
}
