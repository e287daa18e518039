// Package session defines sessions, checkpoints, feedback records, and the
// Store interface that persistence backends implement.
//
// A session tracks one generation workflow: which wave of stages last
// completed, whether the workflow is paused for feedback, and its terminal
// status. Checkpoints snapshot the full accumulated state after each
// successful batch so the workflow survives process restarts. Feedback
// records keep an audit trail of every revision request.
package session
