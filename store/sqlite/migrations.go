package sqlite

// migrations are applied in order by Migrate. Each entry runs once; applied
// names are tracked in saga_migrations.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "001_create_sessions",
		sql: `
			CREATE TABLE IF NOT EXISTS saga_sessions (
				id                TEXT PRIMARY KEY,
				topic             TEXT NOT NULL,
				stage             TEXT NOT NULL DEFAULT '',
				wave              INTEGER NOT NULL DEFAULT 0,
				awaiting_feedback INTEGER NOT NULL DEFAULT 0,
				status            TEXT NOT NULL DEFAULT 'active',
				error             TEXT NOT NULL DEFAULT '',
				created_at        INTEGER NOT NULL,
				updated_at        INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_saga_sessions_status
				ON saga_sessions (status);`,
	},
	{
		name: "002_create_checkpoints",
		sql: `
			CREATE TABLE IF NOT EXISTS saga_checkpoints (
				id         TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES saga_sessions (id) ON DELETE CASCADE,
				stage      TEXT NOT NULL,
				state      BLOB NOT NULL,
				created_at INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_saga_checkpoints_session
				ON saga_checkpoints (session_id, created_at);`,
	},
	{
		name: "003_create_feedback",
		sql: `
			CREATE TABLE IF NOT EXISTS saga_feedback (
				id         TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES saga_sessions (id) ON DELETE CASCADE,
				stage      TEXT NOT NULL,
				text       TEXT NOT NULL,
				created_at INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_saga_feedback_session
				ON saga_feedback (session_id, created_at);`,
	},
}
