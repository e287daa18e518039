package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/HACKMANV8/saga"
	"github.com/HACKMANV8/saga/id"
	"github.com/HACKMANV8/saga/session"
)

// Ensure Store implements the session persistence contract at compile time.
var _ session.Store = (*Store)(nil)

// Store is a fully in-memory implementation of session.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	sessions    map[string]*session.Session
	checkpoints map[string][]*session.Checkpoint    // key: session ID, append order
	feedback    map[string][]*session.FeedbackRecord // key: session ID, append order
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		sessions:    make(map[string]*session.Session),
		checkpoints: make(map[string][]*session.Checkpoint),
		feedback:    make(map[string][]*session.FeedbackRecord),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Sessions
// ──────────────────────────────────────────────────

// CreateSession persists a new session.
func (m *Store) CreateSession(_ context.Context, ses *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ses.ID.String()
	if _, exists := m.sessions[key]; exists {
		return saga.ErrSessionExists
	}
	cp := *ses
	m.sessions[key] = &cp
	return nil
}

// GetSession retrieves a session by ID.
func (m *Store) GetSession(_ context.Context, sessionID id.SessionID) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ses, ok := m.sessions[sessionID.String()]
	if !ok {
		return nil, saga.ErrSessionNotFound
	}
	cp := *ses
	return &cp, nil
}

// UpdateSession persists changes to an existing session.
func (m *Store) UpdateSession(_ context.Context, ses *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ses.ID.String()
	if _, ok := m.sessions[key]; !ok {
		return saga.ErrSessionNotFound
	}
	cp := *ses
	cp.UpdatedAt = time.Now().UTC()
	m.sessions[key] = &cp
	return nil
}

// ListSessions returns sessions matching the given options, oldest first.
func (m *Store) ListSessions(_ context.Context, opts session.ListOpts) ([]*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*session.Session, 0, len(m.sessions))
	for _, ses := range m.sessions {
		if opts.Status != "" && ses.Status != opts.Status {
			continue
		}
		cp := *ses
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// DeleteSession removes the session and cascades to its checkpoints and
// feedback records.
func (m *Store) DeleteSession(_ context.Context, sessionID id.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionID.String()
	if _, ok := m.sessions[key]; !ok {
		return saga.ErrSessionNotFound
	}
	delete(m.sessions, key)
	delete(m.checkpoints, key)
	delete(m.feedback, key)
	return nil
}

// ──────────────────────────────────────────────────
// Checkpoints
// ──────────────────────────────────────────────────

// SaveCheckpoint appends a checkpoint for a session.
func (m *Store) SaveCheckpoint(_ context.Context, cp *session.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cp.SessionID.String()
	if _, ok := m.sessions[key]; !ok {
		return saga.ErrSessionNotFound
	}

	dup := *cp
	dup.State = append([]byte(nil), cp.State...)
	m.checkpoints[key] = append(m.checkpoints[key], &dup)
	return nil
}

// LatestCheckpoint returns the most recent checkpoint for a session.
func (m *Store) LatestCheckpoint(_ context.Context, sessionID id.SessionID) (*session.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := sessionID.String()
	if _, ok := m.sessions[key]; !ok {
		return nil, saga.ErrSessionNotFound
	}
	cps := m.checkpoints[key]
	if len(cps) == 0 {
		return nil, saga.ErrCheckpointNotFound
	}
	return copyCheckpoint(cps[len(cps)-1]), nil
}

// GetCheckpoint retrieves a specific checkpoint.
func (m *Store) GetCheckpoint(_ context.Context, sessionID id.SessionID, checkpointID id.CheckpointID) (*session.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := sessionID.String()
	if _, ok := m.sessions[key]; !ok {
		return nil, saga.ErrSessionNotFound
	}
	for _, cp := range m.checkpoints[key] {
		if cp.ID == checkpointID {
			return copyCheckpoint(cp), nil
		}
	}
	return nil, saga.ErrCheckpointNotFound
}

// ListCheckpoints returns checkpoint metadata for a session in creation
// order. State payloads are not included.
func (m *Store) ListCheckpoints(_ context.Context, sessionID id.SessionID) ([]session.CheckpointMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := sessionID.String()
	if _, ok := m.sessions[key]; !ok {
		return nil, saga.ErrSessionNotFound
	}
	cps := m.checkpoints[key]
	metas := make([]session.CheckpointMeta, len(cps))
	for i, cp := range cps {
		metas[i] = cp.Meta()
	}
	return metas, nil
}

// PruneCheckpoints removes all but the most recent keep checkpoints.
func (m *Store) PruneCheckpoints(_ context.Context, sessionID id.SessionID, keep int) error {
	if keep <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionID.String()
	cps := m.checkpoints[key]
	if len(cps) > keep {
		m.checkpoints[key] = append([]*session.Checkpoint(nil), cps[len(cps)-keep:]...)
	}
	return nil
}

func copyCheckpoint(cp *session.Checkpoint) *session.Checkpoint {
	dup := *cp
	dup.State = append([]byte(nil), cp.State...)
	return &dup
}

// ──────────────────────────────────────────────────
// Feedback
// ──────────────────────────────────────────────────

// AppendFeedback appends a feedback record to the session's history.
func (m *Store) AppendFeedback(_ context.Context, rec *session.FeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.SessionID.String()
	if _, ok := m.sessions[key]; !ok {
		return saga.ErrSessionNotFound
	}
	cp := *rec
	m.feedback[key] = append(m.feedback[key], &cp)
	return nil
}

// ListFeedback returns the session's feedback history in submission order.
func (m *Store) ListFeedback(_ context.Context, sessionID id.SessionID) ([]*session.FeedbackRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := sessionID.String()
	if _, ok := m.sessions[key]; !ok {
		return nil, saga.ErrSessionNotFound
	}
	recs := m.feedback[key]
	result := make([]*session.FeedbackRecord, len(recs))
	for i, rec := range recs {
		cp := *rec
		result[i] = &cp
	}
	return result, nil
}
