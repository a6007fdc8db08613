package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "trackforge"

// StartTaskSpan starts a span for a task operation such as "task.update".
func StartTaskSpan(ctx context.Context, op, tenantID, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, op,
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("task.id", taskID),
		),
	)
}

// StartUploadSpan starts a span for one background attachment upload.
func StartUploadSpan(ctx context.Context, taskID, tempID string, size int64) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "attachment.upload",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("upload.temp_id", tempID),
			attribute.Int64("upload.size", size),
		),
	)
}
