package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/id"
	"github.com/HACKMANV8/saga/session"
)

// SaveCheckpoint durably appends a checkpoint. The checkpoint hash and the
// session's ordered checkpoint list are written in one transaction.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *session.Checkpoint) error {
	sID := cp.SessionID.String()

	exists, err := s.client.Exists(ctx, sessionKey(sID)).Result()
	if err != nil {
		return fmt.Errorf("saga/redis: save checkpoint exists: %w", err)
	}
	if exists == 0 {
		return saga.ErrSessionNotFound
	}

	cpID := cp.ID.String()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, checkpointKey(cpID),
		"id", cpID,
		"session_id", sID,
		"stage", cp.Stage,
		"state", string(cp.State),
		"created_at", cp.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.RPush(ctx, checkpointListKey(sID), cpID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saga/redis: save checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the most recent checkpoint for a session.
func (s *Store) LatestCheckpoint(ctx context.Context, sessionID id.SessionID) (*session.Checkpoint, error) {
	sID := sessionID.String()
	if err := s.sessionExists(ctx, sID); err != nil {
		return nil, err
	}

	ids, err := s.client.LRange(ctx, checkpointListKey(sID), -1, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("saga/redis: latest checkpoint lrange: %w", err)
	}
	if len(ids) == 0 {
		return nil, saga.ErrCheckpointNotFound
	}
	return s.loadCheckpoint(ctx, ids[0])
}

// GetCheckpoint retrieves a specific checkpoint.
func (s *Store) GetCheckpoint(ctx context.Context, sessionID id.SessionID, checkpointID id.CheckpointID) (*session.Checkpoint, error) {
	if err := s.sessionExists(ctx, sessionID.String()); err != nil {
		return nil, err
	}

	cp, err := s.loadCheckpoint(ctx, checkpointID.String())
	if err != nil {
		return nil, err
	}
	if cp.SessionID != sessionID {
		return nil, saga.ErrCheckpointNotFound
	}
	return cp, nil
}

// ListCheckpoints returns checkpoint metadata for a session in creation
// order.
func (s *Store) ListCheckpoints(ctx context.Context, sessionID id.SessionID) ([]session.CheckpointMeta, error) {
	sID := sessionID.String()
	if err := s.sessionExists(ctx, sID); err != nil {
		return nil, err
	}

	ids, err := s.client.LRange(ctx, checkpointListKey(sID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("saga/redis: list checkpoints lrange: %w", err)
	}

	metas := make([]session.CheckpointMeta, 0, len(ids))
	for _, cpID := range ids {
		meta, loadErr := s.loadCheckpointMeta(ctx, cpID)
		if loadErr != nil {
			s.logger.Warn("skipping unreadable checkpoint",
				"checkpoint_id", cpID, "session_id", sID, "error", loadErr)
			continue
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// loadCheckpointMeta fetches only the metadata fields so listing never
// pulls state blobs.
func (s *Store) loadCheckpointMeta(ctx context.Context, cpID string) (session.CheckpointMeta, error) {
	vals, err := s.client.HMGet(ctx, checkpointKey(cpID),
		"id", "session_id", "stage", "created_at").Result()
	if err != nil {
		return session.CheckpointMeta{}, fmt.Errorf("saga/redis: get checkpoint meta: %w", err)
	}
	fields := make([]string, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			return session.CheckpointMeta{}, saga.ErrCheckpointNotFound
		}
		fields[i] = str
	}

	parsedID, err := id.ParseCheckpointID(fields[0])
	if err != nil {
		return session.CheckpointMeta{}, fmt.Errorf("saga/redis: parse checkpoint id: %w", err)
	}
	sID, err := id.ParseSessionID(fields[1])
	if err != nil {
		return session.CheckpointMeta{}, fmt.Errorf("saga/redis: parse checkpoint session id: %w", err)
	}

	return session.CheckpointMeta{
		ID:        parsedID,
		SessionID: sID,
		Stage:     fields[2],
		CreatedAt: parseTime(fields[3]),
	}, nil
}

// PruneCheckpoints removes all but the most recent keep checkpoints.
func (s *Store) PruneCheckpoints(ctx context.Context, sessionID id.SessionID, keep int) error {
	if keep <= 0 {
		return nil
	}

	sID := sessionID.String()
	listKey := checkpointListKey(sID)

	total, err := s.client.LLen(ctx, listKey).Result()
	if err != nil {
		return fmt.Errorf("saga/redis: prune checkpoints llen: %w", err)
	}
	if total <= int64(keep) {
		return nil
	}

	pruned, err := s.client.LRange(ctx, listKey, 0, total-int64(keep)-1).Result()
	if err != nil {
		return fmt.Errorf("saga/redis: prune checkpoints lrange: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, cpID := range pruned {
		pipe.Del(ctx, checkpointKey(cpID))
	}
	pipe.LTrim(ctx, listKey, -int64(keep), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saga/redis: prune checkpoints: %w", err)
	}
	return nil
}

func (s *Store) loadCheckpoint(ctx context.Context, cpID string) (*session.Checkpoint, error) {
	vals, err := s.client.HGetAll(ctx, checkpointKey(cpID)).Result()
	if err != nil {
		return nil, fmt.Errorf("saga/redis: get checkpoint: %w", err)
	}
	if len(vals) == 0 {
		return nil, saga.ErrCheckpointNotFound
	}

	parsedID, err := id.ParseCheckpointID(vals["id"])
	if err != nil {
		return nil, fmt.Errorf("saga/redis: parse checkpoint id: %w", err)
	}
	sID, err := id.ParseSessionID(vals["session_id"])
	if err != nil {
		return nil, fmt.Errorf("saga/redis: parse checkpoint session id: %w", err)
	}

	return &session.Checkpoint{
		ID:        parsedID,
		SessionID: sID,
		Stage:     vals["stage"],
		State:     []byte(vals["state"]),
		CreatedAt: parseTime(vals["created_at"]),
	}, nil
}

func (s *Store) sessionExists(ctx context.Context, sID string) error {
	exists, err := s.client.Exists(ctx, sessionKey(sID)).Result()
	if err != nil {
		return fmt.Errorf("saga/redis: session exists: %w", err)
	}
	if exists == 0 {
		return saga.ErrSessionNotFound
	}
	return nil
}
