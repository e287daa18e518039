package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HACKMANV8/saga/id"
	"github.com/HACKMANV8/saga/session"
)

// AppendFeedback appends a feedback record to the session's history.
// Records are stored as JSON entries in an ordered List.
func (s *Store) AppendFeedback(ctx context.Context, rec *session.FeedbackRecord) error {
	sID := rec.SessionID.String()
	if err := s.sessionExists(ctx, sID); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("saga/redis: marshal feedback: %w", err)
	}
	if err := s.client.RPush(ctx, feedbackListKey(sID), data).Err(); err != nil {
		return fmt.Errorf("saga/redis: append feedback: %w", err)
	}
	return nil
}

// ListFeedback returns the session's feedback history in submission order.
func (s *Store) ListFeedback(ctx context.Context, sessionID id.SessionID) ([]*session.FeedbackRecord, error) {
	sID := sessionID.String()
	if err := s.sessionExists(ctx, sID); err != nil {
		return nil, err
	}

	entries, err := s.client.LRange(ctx, feedbackListKey(sID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("saga/redis: list feedback lrange: %w", err)
	}

	recs := make([]*session.FeedbackRecord, 0, len(entries))
	for _, entry := range entries {
		var rec session.FeedbackRecord
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			return nil, fmt.Errorf("saga/redis: unmarshal feedback: %w", err)
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}
