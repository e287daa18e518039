package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/HACKMANV8/saga/hook"
	"github.com/HACKMANV8/saga/session"
)

// Compile-time interface checks.
var (
	_ hook.Extension         = (*MetricsExtension)(nil)
	_ hook.SessionStarted    = (*MetricsExtension)(nil)
	_ hook.SessionCompleted  = (*MetricsExtension)(nil)
	_ hook.SessionFailed     = (*MetricsExtension)(nil)
	_ hook.StageCompleted    = (*MetricsExtension)(nil)
	_ hook.StageFailed       = (*MetricsExtension)(nil)
	_ hook.BatchCompleted    = (*MetricsExtension)(nil)
	_ hook.FeedbackSubmitted = (*MetricsExtension)(nil)
)

// MetricsExtension records engine lifecycle metrics through OpenTelemetry.
// Register it as an engine extension to automatically track session
// throughput, stage outcomes, and generation latency.
type MetricsExtension struct {
	sessionsStarted   metric.Int64Counter
	sessionsCompleted metric.Int64Counter
	sessionsFailed    metric.Int64Counter
	stagesCompleted   metric.Int64Counter
	stagesFailed      metric.Int64Counter
	batchesCompleted  metric.Int64Counter
	feedbackSubmitted metric.Int64Counter
	stageDuration     metric.Float64Histogram
	batchDuration     metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global meter
// provider.
func NewMetricsExtension() (*MetricsExtension, error) {
	return NewMetricsExtensionWithProvider(otel.GetMeterProvider())
}

// NewMetricsExtensionWithProvider creates a MetricsExtension with the
// provided meter provider.
func NewMetricsExtensionWithProvider(provider metric.MeterProvider) (*MetricsExtension, error) {
	meter := provider.Meter("github.com/HACKMANV8/saga/observability")

	m := &MetricsExtension{}
	var err error

	if m.sessionsStarted, err = meter.Int64Counter("saga.session.started",
		metric.WithDescription("Sessions started")); err != nil {
		return nil, fmt.Errorf("saga/observability: create counter: %w", err)
	}
	if m.sessionsCompleted, err = meter.Int64Counter("saga.session.completed",
		metric.WithDescription("Sessions completed")); err != nil {
		return nil, fmt.Errorf("saga/observability: create counter: %w", err)
	}
	if m.sessionsFailed, err = meter.Int64Counter("saga.session.failed",
		metric.WithDescription("Sessions failed terminally")); err != nil {
		return nil, fmt.Errorf("saga/observability: create counter: %w", err)
	}
	if m.stagesCompleted, err = meter.Int64Counter("saga.stage.completed",
		metric.WithDescription("Stage generations completed")); err != nil {
		return nil, fmt.Errorf("saga/observability: create counter: %w", err)
	}
	if m.stagesFailed, err = meter.Int64Counter("saga.stage.failed",
		metric.WithDescription("Stage generations failed after retries")); err != nil {
		return nil, fmt.Errorf("saga/observability: create counter: %w", err)
	}
	if m.batchesCompleted, err = meter.Int64Counter("saga.batch.completed",
		metric.WithDescription("Stage batches merged and checkpointed")); err != nil {
		return nil, fmt.Errorf("saga/observability: create counter: %w", err)
	}
	if m.feedbackSubmitted, err = meter.Int64Counter("saga.feedback.submitted",
		metric.WithDescription("Feedback submissions accepted")); err != nil {
		return nil, fmt.Errorf("saga/observability: create counter: %w", err)
	}
	if m.stageDuration, err = meter.Float64Histogram("saga.stage.duration",
		metric.WithDescription("Stage generation latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("saga/observability: create histogram: %w", err)
	}
	if m.batchDuration, err = meter.Float64Histogram("saga.batch.duration",
		metric.WithDescription("Batch wall-clock latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("saga/observability: create histogram: %w", err)
	}

	return m, nil
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnSessionStarted implements hook.SessionStarted.
func (m *MetricsExtension) OnSessionStarted(ctx context.Context, _ *session.Session) error {
	m.sessionsStarted.Add(ctx, 1)
	return nil
}

// OnSessionCompleted implements hook.SessionCompleted.
func (m *MetricsExtension) OnSessionCompleted(ctx context.Context, _ *session.Session, _ time.Duration) error {
	m.sessionsCompleted.Add(ctx, 1)
	return nil
}

// OnSessionFailed implements hook.SessionFailed.
func (m *MetricsExtension) OnSessionFailed(ctx context.Context, _ *session.Session, _ error) error {
	m.sessionsFailed.Add(ctx, 1)
	return nil
}

// OnStageCompleted implements hook.StageCompleted.
func (m *MetricsExtension) OnStageCompleted(ctx context.Context, _ *session.Session, stage string, elapsed time.Duration) error {
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	m.stagesCompleted.Add(ctx, 1, attrs)
	m.stageDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnStageFailed implements hook.StageFailed.
func (m *MetricsExtension) OnStageFailed(ctx context.Context, _ *session.Session, stage string, _ error) error {
	m.stagesFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	return nil
}

// OnBatchCompleted implements hook.BatchCompleted.
func (m *MetricsExtension) OnBatchCompleted(ctx context.Context, _ *session.Session, wave string, elapsed time.Duration) error {
	attrs := metric.WithAttributes(attribute.String("wave", wave))
	m.batchesCompleted.Add(ctx, 1, attrs)
	m.batchDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnFeedbackSubmitted implements hook.FeedbackSubmitted.
func (m *MetricsExtension) OnFeedbackSubmitted(ctx context.Context, _ *session.Session, rec *session.FeedbackRecord) error {
	m.feedbackSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", rec.Stage)))
	return nil
}
