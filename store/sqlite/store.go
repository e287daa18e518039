// Package sqlite implements session.Store on an embedded SQLite database.
// It uses the pure-Go modernc.org/sqlite driver, so no cgo or external
// service is required. Suited for single-process deployments that need
// checkpoints to survive restarts.
//
// Usage:
//
//	s, err := sqlite.New(ctx, "saga.db")
//	if err != nil { ... }
//	defer s.Close()
//	if err := s.Migrate(ctx); err != nil { ... }
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register the "sqlite" driver

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/id"
	"github.com/HACKMANV8/saga/session"
)

// Ensure Store implements the session persistence contract at compile time.
var _ session.Store = (*Store)(nil)

// Store is a SQLite implementation of session.Store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New opens a SQLite store at the given path. The database is opened in
// WAL mode with foreign keys enforced. Use ":memory:" for an ephemeral
// database.
func New(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("saga/sqlite: storage path is required")
	}

	// modernc.org/sqlite only honors _pragma-style DSN parameters.
	// foreign_keys must be ON or DeleteSession's cascade is inert.
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("saga/sqlite: open: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("saga/sqlite: ping: %w", err)
	}

	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFromDB wraps an existing database handle. The caller owns the handle
// lifecycle; Close becomes a no-op.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database handle for advanced usage.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies all pending schema migrations in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS saga_migrations (
			name       TEXT PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("saga/sqlite: create migrations table: %w", err)
	}

	for _, mig := range migrations {
		var count int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM saga_migrations WHERE name = ?`, mig.name,
		).Scan(&count); err != nil {
			return fmt.Errorf("saga/sqlite: check migration %s: %w", mig.name, err)
		}
		if count > 0 {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("saga/sqlite: begin migration %s: %w", mig.name, err)
		}
		if _, err := tx.ExecContext(ctx, mig.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("saga/sqlite: apply migration %s: %w", mig.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO saga_migrations (name, applied_at) VALUES (?, ?)`,
			mig.name, time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("saga/sqlite: record migration %s: %w", mig.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("saga/sqlite: commit migration %s: %w", mig.name, err)
		}

		s.logger.Debug("applied migration", "name", mig.name)
	}

	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// ──────────────────────────────────────────────────
// Sessions
// ──────────────────────────────────────────────────

// CreateSession persists a new session.
func (s *Store) CreateSession(ctx context.Context, ses *session.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_sessions
			(id, topic, stage, wave, awaiting_feedback, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ses.ID, ses.Topic, ses.Stage, ses.Wave, ses.AwaitingFeedback,
		string(ses.Status), ses.Error, toMillis(ses.CreatedAt), toMillis(ses.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return saga.ErrSessionExists
		}
		return fmt.Errorf("saga/sqlite: create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, sessionID id.SessionID) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, topic, stage, wave, awaiting_feedback, status, error, created_at, updated_at
		FROM saga_sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

// UpdateSession persists changes to an existing session.
func (s *Store) UpdateSession(ctx context.Context, ses *session.Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE saga_sessions
		SET topic = ?, stage = ?, wave = ?, awaiting_feedback = ?, status = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		ses.Topic, ses.Stage, ses.Wave, ses.AwaitingFeedback,
		string(ses.Status), ses.Error, time.Now().UTC().UnixMilli(), ses.ID,
	)
	if err != nil {
		return fmt.Errorf("saga/sqlite: update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saga/sqlite: update session rows: %w", err)
	}
	if n == 0 {
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
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY created_at, id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("saga/sqlite: list sessions: %w", err)
	}
	defer rows.Close()

	var result []*session.Session
	for rows.Next() {
		ses, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ses)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("saga/sqlite: list sessions rows: %w", err)
	}
	return result, nil
}

// DeleteSession removes the session; checkpoints and feedback cascade via
// foreign keys.
func (s *Store) DeleteSession(ctx context.Context, sessionID id.SessionID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saga_sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("saga/sqlite: delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saga/sqlite: delete session rows: %w", err)
	}
	if n == 0 {
		return saga.ErrSessionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		ses       session.Session
		status    string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&ses.ID, &ses.Topic, &ses.Stage, &ses.Wave, &ses.AwaitingFeedback,
		&status, &ses.Error, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, saga.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("saga/sqlite: scan session: %w", err)
	}
	ses.Status = session.Status(status)
	ses.CreatedAt = fromMillis(createdAt)
	ses.UpdatedAt = fromMillis(updatedAt)
	return &ses, nil
}

// ──────────────────────────────────────────────────
// Checkpoints
// ──────────────────────────────────────────────────

// SaveCheckpoint durably appends a checkpoint.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *session.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_checkpoints (id, session_id, stage, state, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		cp.ID, cp.SessionID, cp.Stage, cp.State, toMillis(cp.CreatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return saga.ErrSessionNotFound
		}
		return fmt.Errorf("saga/sqlite: save checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the most recent checkpoint for a session.
func (s *Store) LatestCheckpoint(ctx context.Context, sessionID id.SessionID) (*session.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, stage, state, created_at
		FROM saga_checkpoints WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, sessionID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, saga.ErrCheckpointNotFound) {
		if existsErr := s.sessionExists(ctx, sessionID); existsErr != nil {
			return nil, existsErr
		}
	}
	return cp, err
}

// GetCheckpoint retrieves a specific checkpoint.
func (s *Store) GetCheckpoint(ctx context.Context, sessionID id.SessionID, checkpointID id.CheckpointID) (*session.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, stage, state, created_at
		FROM saga_checkpoints WHERE session_id = ? AND id = ?`, sessionID, checkpointID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, saga.ErrCheckpointNotFound) {
		if existsErr := s.sessionExists(ctx, sessionID); existsErr != nil {
			return nil, existsErr
		}
	}
	return cp, err
}

// ListCheckpoints returns checkpoint metadata for a session in creation
// order.
func (s *Store) ListCheckpoints(ctx context.Context, sessionID id.SessionID) ([]session.CheckpointMeta, error) {
	if err := s.sessionExists(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, stage, created_at
		FROM saga_checkpoints WHERE session_id = ?
		ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("saga/sqlite: list checkpoints: %w", err)
	}
	defer rows.Close()

	var metas []session.CheckpointMeta
	for rows.Next() {
		var (
			meta      session.CheckpointMeta
			createdAt int64
		)
		if err := rows.Scan(&meta.ID, &meta.SessionID, &meta.Stage, &createdAt); err != nil {
			return nil, fmt.Errorf("saga/sqlite: scan checkpoint meta: %w", err)
		}
		meta.CreatedAt = fromMillis(createdAt)
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("saga/sqlite: list checkpoints rows: %w", err)
	}
	return metas, nil
}

// PruneCheckpoints removes all but the most recent keep checkpoints.
func (s *Store) PruneCheckpoints(ctx context.Context, sessionID id.SessionID, keep int) error {
	if keep <= 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM saga_checkpoints
		WHERE session_id = ? AND id NOT IN (
			SELECT id FROM saga_checkpoints WHERE session_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`, sessionID, sessionID, keep)
	if err != nil {
		return fmt.Errorf("saga/sqlite: prune checkpoints: %w", err)
	}
	return nil
}

func scanCheckpoint(row rowScanner) (*session.Checkpoint, error) {
	var (
		cp        session.Checkpoint
		createdAt int64
	)
	err := row.Scan(&cp.ID, &cp.SessionID, &cp.Stage, &cp.State, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, saga.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("saga/sqlite: scan checkpoint: %w", err)
	}
	cp.CreatedAt = fromMillis(createdAt)
	return &cp, nil
}

func (s *Store) sessionExists(ctx context.Context, sessionID id.SessionID) error {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM saga_sessions WHERE id = ?`, sessionID,
	).Scan(&count); err != nil {
		return fmt.Errorf("saga/sqlite: session exists: %w", err)
	}
	if count == 0 {
		return saga.ErrSessionNotFound
	}
	return nil
}

// ──────────────────────────────────────────────────
// Feedback
// ──────────────────────────────────────────────────

// AppendFeedback appends a feedback record to the session's history.
func (s *Store) AppendFeedback(ctx context.Context, rec *session.FeedbackRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_feedback (id, session_id, stage, text, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Stage, rec.Text, toMillis(rec.CreatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return saga.ErrSessionNotFound
		}
		return fmt.Errorf("saga/sqlite: append feedback: %w", err)
	}
	return nil
}

// ListFeedback returns the session's feedback history in submission order.
func (s *Store) ListFeedback(ctx context.Context, sessionID id.SessionID) ([]*session.FeedbackRecord, error) {
	if err := s.sessionExists(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, stage, text, created_at
		FROM saga_feedback WHERE session_id = ?
		ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("saga/sqlite: list feedback: %w", err)
	}
	defer rows.Close()

	var recs []*session.FeedbackRecord
	for rows.Next() {
		var (
			rec       session.FeedbackRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Stage, &rec.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("saga/sqlite: scan feedback: %w", err)
		}
		rec.CreatedAt = fromMillis(createdAt)
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("saga/sqlite: list feedback rows: %w", err)
	}
	return recs, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
