package notifyhook

import (
	"log/slog"
	"net/http"
)

// Option configures an Extension.
type Option func(*Extension)

// WithEvents restricts the extension to deliver only the listed event
// types. By default all event types are enabled. Unknown types are
// silently ignored.
func WithEvents(events ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(events))
		for _, evt := range events {
			e.enabled[evt] = true
		}
	}
}

// WithHTTPClient sets the HTTP client used for delivery. The default
// client has a 10 second timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extension) { e.client = c }
}

// WithHeader adds a header to every webhook request, such as an
// authorization token.
func WithHeader(key, value string) Option {
	return func(e *Extension) {
		if e.headers == nil {
			e.headers = make(map[string]string)
		}
		e.headers[key] = value
	}
}

// WithLogger sets a custom logger for the extension.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}
