// Package notifyhook delivers session lifecycle events to an HTTP
// webhook endpoint. Its main purpose is the human-in-the-loop pause:
// when a batch completes and the session suspends awaiting feedback,
// the configured endpoint receives a saga.review.requested event so
// reviewers can be paged without polling.
//
// Usage:
//
//	hook := notifyhook.New("https://reviews.example.com/saga")
//	engine.WithExtension(hook)
//
// To restrict which events are delivered:
//
//	hook := notifyhook.New(url,
//	    notifyhook.WithEvents(
//	        notifyhook.EventReviewRequested,
//	        notifyhook.EventSessionFailed,
//	    ),
//	)
package notifyhook
