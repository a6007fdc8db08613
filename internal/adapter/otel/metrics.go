package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "trackforge"

// Metrics holds all TrackForge metric instruments.
type Metrics struct {
	TasksCreated     metric.Int64Counter
	TaskUpdates      metric.Int64Counter
	VersionConflicts metric.Int64Counter
	ActivityEntries  metric.Int64Counter
	UploadsStarted   metric.Int64Counter
	UploadsCommitted metric.Int64Counter
	UploadsFailed    metric.Int64Counter
	UploadDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksCreated, err = meter.Int64Counter("trackforge.tasks.created",
		metric.WithDescription("Number of tasks created"))
	if err != nil {
		return nil, err
	}

	m.TaskUpdates, err = meter.Int64Counter("trackforge.tasks.updates",
		metric.WithDescription("Number of committed task updates"))
	if err != nil {
		return nil, err
	}

	m.VersionConflicts, err = meter.Int64Counter("trackforge.tasks.version_conflicts",
		metric.WithDescription("Number of updates rejected for a stale version"))
	if err != nil {
		return nil, err
	}

	m.ActivityEntries, err = meter.Int64Counter("trackforge.activity.entries",
		metric.WithDescription("Number of audit entries appended"))
	if err != nil {
		return nil, err
	}

	m.UploadsStarted, err = meter.Int64Counter("trackforge.uploads.started",
		metric.WithDescription("Number of attachment uploads started"))
	if err != nil {
		return nil, err
	}

	m.UploadsCommitted, err = meter.Int64Counter("trackforge.uploads.committed",
		metric.WithDescription("Number of attachment uploads committed"))
	if err != nil {
		return nil, err
	}

	m.UploadsFailed, err = meter.Int64Counter("trackforge.uploads.failed",
		metric.WithDescription("Number of attachment uploads failed or timed out"))
	if err != nil {
		return nil, err
	}

	m.UploadDuration, err = meter.Float64Histogram("trackforge.upload.duration_seconds",
		metric.WithDescription("Attachment upload duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordActivity counts appended audit entries by kind. A nil receiver is a no-op.
func (m *Metrics) RecordActivity(ctx context.Context, kinds ...string) {
	if m == nil {
		return
	}
	for _, k := range kinds {
		m.ActivityEntries.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", k)))
	}
}
