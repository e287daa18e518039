package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/HACKMANV8/saga/hook"
	"github.com/HACKMANV8/saga/session"
)

// Compile-time interface checks.
var (
	_ hook.Extension      = (*TracingExtension)(nil)
	_ hook.StageCompleted = (*TracingExtension)(nil)
	_ hook.StageFailed    = (*TracingExtension)(nil)
	_ hook.BatchCompleted = (*TracingExtension)(nil)
)

// TracingExtension emits OpenTelemetry spans for stage and batch
// execution. Hooks fire after the work finishes, so spans are recorded
// retroactively with explicit start timestamps.
type TracingExtension struct {
	tracer trace.Tracer
}

// NewTracingExtension creates a TracingExtension on the global tracer
// provider.
func NewTracingExtension() *TracingExtension {
	return NewTracingExtensionWithProvider(otel.GetTracerProvider())
}

// NewTracingExtensionWithProvider creates a TracingExtension with the
// provided tracer provider.
func NewTracingExtensionWithProvider(provider trace.TracerProvider) *TracingExtension {
	return &TracingExtension{
		tracer: provider.Tracer("github.com/HACKMANV8/saga/observability"),
	}
}

// Name implements hook.Extension.
func (t *TracingExtension) Name() string { return "observability-tracing" }

// OnStageCompleted implements hook.StageCompleted.
func (t *TracingExtension) OnStageCompleted(ctx context.Context, ses *session.Session, stage string, elapsed time.Duration) error {
	_, span := t.tracer.Start(ctx, "saga.stage "+stage,
		trace.WithTimestamp(time.Now().Add(-elapsed)),
		trace.WithAttributes(
			attribute.String("saga.session_id", ses.ID.String()),
			attribute.String("saga.stage", stage),
		),
	)
	span.End()
	return nil
}

// OnStageFailed implements hook.StageFailed.
func (t *TracingExtension) OnStageFailed(ctx context.Context, ses *session.Session, stage string, stageErr error) error {
	_, span := t.tracer.Start(ctx, "saga.stage "+stage,
		trace.WithAttributes(
			attribute.String("saga.session_id", ses.ID.String()),
			attribute.String("saga.stage", stage),
		),
	)
	span.RecordError(stageErr)
	span.SetStatus(codes.Error, stageErr.Error())
	span.End()
	return nil
}

// OnBatchCompleted implements hook.BatchCompleted.
func (t *TracingExtension) OnBatchCompleted(ctx context.Context, ses *session.Session, wave string, elapsed time.Duration) error {
	_, span := t.tracer.Start(ctx, "saga.batch "+wave,
		trace.WithTimestamp(time.Now().Add(-elapsed)),
		trace.WithAttributes(
			attribute.String("saga.session_id", ses.ID.String()),
			attribute.String("saga.wave", wave),
		),
	)
	span.End()
	return nil
}
