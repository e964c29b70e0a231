package statemachine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dmitrymomot/statekit/pkg/statemachine"

// startCallSpan creates the root span of a top-level transition call.
// The caller is responsible for calling endSpan.
func startCallSpan(ctx context.Context, operation string, e Entity, field string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "statemachine."+operation)
	span.SetAttributes(
		attribute.String("entity.type", e.EntityType()),
		attribute.String("entity.id", e.EntityID()),
		attribute.String("statemachine.field", field),
	)
	return ctx, span
}

// startHopSpan creates a child span for a single transition.
func startHopSpan(ctx context.Context, from, to, edge string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "statemachine.hop")
	span.SetAttributes(
		attribute.String("statemachine.from", from),
		attribute.String("statemachine.to", to),
		attribute.String("statemachine.edge", edge),
	)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
