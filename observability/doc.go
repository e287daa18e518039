// Package observability provides an OpenTelemetry-based metrics extension
// for the workflow engine. The MetricsExtension implements lifecycle hooks
// to record counters for session starts, completions, and failures, stage
// outcomes, batch merges, and feedback submissions, plus histograms for
// stage and batch durations.
package observability
