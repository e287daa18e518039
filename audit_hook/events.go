package audithook

// Audit event actions. Each constant corresponds to one lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionSessionStarted    = "session.started"
	ActionSessionCompleted  = "session.completed"
	ActionSessionFailed     = "session.failed"
	ActionStageCompleted    = "stage.completed"
	ActionStageFailed       = "stage.failed"
	ActionBatchCompleted    = "batch.completed"
	ActionFeedbackSubmitted = "feedback.submitted"
)

// Audit event categories group related actions.
const (
	CategorySession  = "saga.session"
	CategoryStage    = "saga.stage"
	CategoryFeedback = "saga.feedback"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceSession = "session"
	ResourceStage   = "stage"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionSessionStarted,
		ActionSessionCompleted,
		ActionSessionFailed,
		ActionStageCompleted,
		ActionStageFailed,
		ActionBatchCompleted,
		ActionFeedbackSubmitted,
	}
}
