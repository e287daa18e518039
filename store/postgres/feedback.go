package postgres

import (
	"context"
	"fmt"

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/id"
	"github.com/HACKMANV8/saga/session"
)

// AppendFeedback appends a feedback record to the session's history.
func (s *Store) AppendFeedback(ctx context.Context, rec *session.FeedbackRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO saga_feedback (id, session_id, stage, text, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.SessionID, rec.Stage, rec.Text, rec.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return saga.ErrSessionNotFound
		}
		return fmt.Errorf("saga/postgres: append feedback: %w", err)
	}
	return nil
}

// ListFeedback returns the session's feedback history in submission order.
func (s *Store) ListFeedback(ctx context.Context, sessionID id.SessionID) ([]*session.FeedbackRecord, error) {
	if err := s.sessionExists(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, stage, text, created_at
		FROM saga_feedback WHERE session_id = $1
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("saga/postgres: list feedback: %w", err)
	}
	defer rows.Close()

	var recs []*session.FeedbackRecord
	for rows.Next() {
		var rec session.FeedbackRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Stage, &rec.Text, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("saga/postgres: scan feedback: %w", err)
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("saga/postgres: list feedback rows: %w", err)
	}
	return recs, nil
}
