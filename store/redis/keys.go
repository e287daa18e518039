package redis

// Redis key naming conventions for saga data.
// All keys are prefixed with "saga:" to avoid collisions.

const keyPrefix = "saga:"

// ── Session keys ──

// sessionKey returns the key for a session entity: saga:session:{id}
func sessionKey(id string) string { return keyPrefix + "session:" + id }

// sessionIDsKey is the Set tracking all session IDs for enumeration.
const sessionIDsKey = keyPrefix + "session_ids"

// ── Checkpoint keys ──

// checkpointKey returns the key for a checkpoint: saga:checkpoint:{id}
func checkpointKey(id string) string { return keyPrefix + "checkpoint:" + id }

// checkpointListKey returns the List key preserving checkpoint order for a
// session: saga:checkpoints:{sessionID}
func checkpointListKey(sessionID string) string {
	return keyPrefix + "checkpoints:" + sessionID
}

// ── Feedback keys ──

// feedbackListKey returns the List key preserving feedback order for a
// session: saga:feedback:{sessionID}
func feedbackListKey(sessionID string) string {
	return keyPrefix + "feedback:" + sessionID
}
