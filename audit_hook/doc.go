// Package audithook is an engine extension that bridges session
// lifecycle events to an immutable audit trail backend.
//
// Every session, stage, and feedback lifecycle hook emits a structured
// audit event through the [Recorder] interface. The extension assigns
// appropriate severity levels (info for normal operations, warning for
// recoverable stage failures, critical for terminal session failures)
// and rich metadata (topic, stage label, elapsed time, errors).
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionStageFailed,
//	        audithook.ActionSessionFailed,
//	    ),
//	)
package audithook
