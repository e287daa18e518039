package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/id"
	"github.com/HACKMANV8/saga/session"
)

// CreateSession persists a new session.
func (s *Store) CreateSession(ctx context.Context, ses *session.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO saga_sessions
			(id, topic, stage, wave, awaiting_feedback, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ses.ID, ses.Topic, ses.Stage, ses.Wave, ses.AwaitingFeedback,
		string(ses.Status), ses.Error, ses.CreatedAt, ses.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return saga.ErrSessionExists
		}
		return fmt.Errorf("saga/postgres: create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, topic, stage, wave, awaiting_feedback, status, error, created_at, updated_at
		FROM saga_sessions WHERE id = $1`, sessionID)
	return scanSession(row)
}

// UpdateSession persists changes to an existing session.
func (s *Store) UpdateSession(ctx context.Context, ses *session.Session) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE saga_sessions
		SET topic = $1, stage = $2, wave = $3, awaiting_feedback = $4,
		    status = $5, error = $6, updated_at = $7
		WHERE id = $8`,
		ses.Topic, ses.Stage, ses.Wave, ses.AwaitingFeedback,
		string(ses.Status), ses.Error, time.Now().UTC(), ses.ID,
	)
	if err != nil {
		return fmt.Errorf("saga/postgres: update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return saga.ErrSessionNotFound
	}
	return nil
}

// ListSessions returns sessions matching the given options, oldest first.
func (s *Store) ListSessions(ctx context.Context, opts session.ListOpts) ([]*session.Session, error) {
	query := `
		SELECT id, topic, stage, wave, awaiting_feedback, status, error, created_at, updated_at
		FROM saga_sessions`
	args := []any{}
	if opts.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY created_at, id`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("saga/postgres: list sessions: %w", err)
	}
	defer rows.Close()

	var result []*session.Session
	for rows.Next() {
		ses, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		result = append(result, ses)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("saga/postgres: list sessions rows: %w", err)
	}
	return result, nil
}

// DeleteSession removes the session; checkpoints and feedback cascade via
// foreign keys.
func (s *Store) DeleteSession(ctx context.Context, sessionID id.SessionID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM saga_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("saga/postgres: delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return saga.ErrSessionNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var (
		ses    session.Session
		status string
	)
	err := row.Scan(
		&ses.ID, &ses.Topic, &ses.Stage, &ses.Wave, &ses.AwaitingFeedback,
		&status, &ses.Error, &ses.CreatedAt, &ses.UpdatedAt,
	)
	if isNoRows(err) {
		return nil, saga.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("saga/postgres: scan session: %w", err)
	}
	ses.Status = session.Status(status)
	return &ses, nil
}

func (s *Store) sessionExists(ctx context.Context, sessionID id.SessionID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM saga_sessions WHERE id = $1)`, sessionID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("saga/postgres: session exists: %w", err)
	}
	if !exists {
		return saga.ErrSessionNotFound
	}
	return nil
}
