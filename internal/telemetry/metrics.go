package telemetry

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ironlog/progress"

// ProgressMetrics holds the counters of the progress engine.
// A nil *ProgressMetrics is valid and records nothing.
type ProgressMetrics struct {
	recordsDetected   metric.Int64Counter
	setsSkipped       metric.Int64Counter
	streakTransitions metric.Int64Counter
	historySkipped    metric.Int64Counter
}

// NewProgressMetrics registers the counters on the global meter provider
func NewProgressMetrics() *ProgressMetrics {
	meter := otel.Meter(meterName)
	m := &ProgressMetrics{}
	var err error

	if m.recordsDetected, err = meter.Int64Counter("progress.records.detected",
		metric.WithDescription("Personal records detected, by metric kind")); err != nil {
		log.Warnf("telemetry: failed to create records counter: %s", err)
	}
	if m.setsSkipped, err = meter.Int64Counter("progress.sets.skipped",
		metric.WithDescription("Sets ignored because they do not qualify")); err != nil {
		log.Warnf("telemetry: failed to create skipped sets counter: %s", err)
	}
	if m.streakTransitions, err = meter.Int64Counter("progress.streak.transitions",
		metric.WithDescription("Streak state transitions, by kind")); err != nil {
		log.Warnf("telemetry: failed to create streak counter: %s", err)
	}
	if m.historySkipped, err = meter.Int64Counter("progress.history.skipped",
		metric.WithDescription("History entries skipped during rebuild")); err != nil {
		log.Warnf("telemetry: failed to create history counter: %s", err)
	}
	return m
}

func (m *ProgressMetrics) RecordDetected(ctx context.Context, kind string) {
	if m == nil || m.recordsDetected == nil {
		return
	}
	m.recordsDetected.Add(ctx, 1, metric.WithAttributes(attribute.String("metric.kind", kind)))
}

func (m *ProgressMetrics) SetSkipped(ctx context.Context) {
	if m == nil || m.setsSkipped == nil {
		return
	}
	m.setsSkipped.Add(ctx, 1)
}

func (m *ProgressMetrics) StreakTransition(ctx context.Context, kind string) {
	if m == nil || m.streakTransitions == nil {
		return
	}
	m.streakTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("streak.transition", kind)))
}

func (m *ProgressMetrics) HistorySkipped(ctx context.Context) {
	if m == nil || m.historySkipped == nil {
		return
	}
	m.historySkipped.Add(ctx, 1)
}
