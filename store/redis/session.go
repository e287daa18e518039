package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/id"
	"github.com/HACKMANV8/saga/session"
)

// CreateSession persists a new session.
func (s *Store) CreateSession(ctx context.Context, ses *session.Session) error {
	sID := ses.ID.String()
	key := sessionKey(sID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("saga/redis: create session exists: %w", err)
	}
	if exists > 0 {
		return saga.ErrSessionExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, sessionToMap(ses))
	pipe.SAdd(ctx, sessionIDsKey, sID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saga/redis: create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	vals, err := s.client.HGetAll(ctx, sessionKey(sessionID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("saga/redis: get session: %w", err)
	}
	if len(vals) == 0 {
		return nil, saga.ErrSessionNotFound
	}
	return mapToSession(vals)
}

// UpdateSession persists changes to an existing session.
func (s *Store) UpdateSession(ctx context.Context, ses *session.Session) error {
	key := sessionKey(ses.ID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("saga/redis: update session exists: %w", err)
	}
	if exists == 0 {
		return saga.ErrSessionNotFound
	}

	m := sessionToMap(ses)
	m["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.client.HSet(ctx, key, m).Result(); err != nil {
		return fmt.Errorf("saga/redis: update session: %w", err)
	}
	return nil
}

// ListSessions returns sessions matching the given options, oldest first.
func (s *Store) ListSessions(ctx context.Context, opts session.ListOpts) ([]*session.Session, error) {
	ids, err := s.client.SMembers(ctx, sessionIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("saga/redis: list sessions smembers: %w", err)
	}

	var sessions []*session.Session
	for _, sID := range ids {
		vals, getErr := s.client.HGetAll(ctx, sessionKey(sID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		ses, convErr := mapToSession(vals)
		if convErr != nil {
			continue
		}
		if opts.Status != "" && ses.Status != opts.Status {
			continue
		}
		sessions = append(sessions, ses)
	}

	sort.Slice(sessions, func(i, k int) bool {
		return sessions[i].CreatedAt.Before(sessions[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(sessions) {
			return nil, nil
		}
		sessions = sessions[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(sessions) {
		sessions = sessions[:opts.Limit]
	}
	return sessions, nil
}

// DeleteSession removes the session and cascades to its checkpoints and
// feedback records.
func (s *Store) DeleteSession(ctx context.Context, sessionID id.SessionID) error {
	sID := sessionID.String()
	key := sessionKey(sID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("saga/redis: delete session exists: %w", err)
	}
	if exists == 0 {
		return saga.ErrSessionNotFound
	}

	cpIDs, err := s.client.LRange(ctx, checkpointListKey(sID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("saga/redis: delete session checkpoints: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, cpID := range cpIDs {
		pipe.Del(ctx, checkpointKey(cpID))
	}
	pipe.Del(ctx, checkpointListKey(sID))
	pipe.Del(ctx, feedbackListKey(sID))
	pipe.Del(ctx, key)
	pipe.SRem(ctx, sessionIDsKey, sID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saga/redis: delete session: %w", err)
	}
	return nil
}

// ── Hash conversion helpers ──

func sessionToMap(ses *session.Session) map[string]any {
	return map[string]any{
		"id":                ses.ID.String(),
		"topic":             ses.Topic,
		"stage":             ses.Stage,
		"wave":              strconv.Itoa(ses.Wave),
		"awaiting_feedback": strconv.FormatBool(ses.AwaitingFeedback),
		"status":            string(ses.Status),
		"error":             ses.Error,
		"created_at":        ses.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":        ses.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func mapToSession(vals map[string]string) (*session.Session, error) {
	sID, err := id.ParseSessionID(vals["id"])
	if err != nil {
		return nil, fmt.Errorf("saga/redis: parse session id: %w", err)
	}

	ses := &session.Session{
		ID:     sID,
		Topic:  vals["topic"],
		Stage:  vals["stage"],
		Status: session.Status(vals["status"]),
		Error:  vals["error"],
	}
	if v := vals["wave"]; v != "" {
		wave, convErr := strconv.Atoi(v)
		if convErr != nil {
			return nil, fmt.Errorf("saga/redis: parse wave: %w", convErr)
		}
		ses.Wave = wave
	}
	ses.AwaitingFeedback = vals["awaiting_feedback"] == "true"
	ses.CreatedAt = parseTime(vals["created_at"])
	ses.UpdatedAt = parseTime(vals["updated_at"])
	return ses, nil
}

// parseTime parses an RFC3339Nano timestamp, returning the zero time on
// malformed input.
func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
