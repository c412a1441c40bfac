package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "crewd"

// StartTaskSpan starts a span for one task execution attempt.
func StartTaskSpan(ctx context.Context, taskID, workerID, teamID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.execute",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("worker.id", workerID),
			attribute.String("team.id", teamID),
		),
	)
}

// StartReasoningSpan starts a span for a reasoning port call.
func StartReasoningSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "reasoning."+op,
		trace.WithAttributes(
			attribute.String("reasoning.op", op),
		),
	)
}

// StartReviewSpan starts a span for a manager review.
func StartReviewSpan(ctx context.Context, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "review",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
		),
	)
}
