package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "partri"

// Phase names the top-level stages a run moves through, used by PhaseSpan.
// These mirror the three phases the original cgal4py harness timed
// separately: tessellate, exchange, finalize.
type Phase string

const (
	PhaseTessellate Phase = "tess"
	PhaseExchange   Phase = "exch"
	PhaseFinalize   Phase = "final"
)

// PhaseSpan starts a span named after one of the three run phases. Callers
// defer the returned end func.
func PhaseSpan(ctx context.Context, phase Phase) (context.Context, func()) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, string(phase))
	return ctx, func() { span.End() }
}

// RoundSpan starts a span for one exchange round, tagging it with the round
// number, bytes moved, and the count of leaves that were still active.
func RoundSpan(ctx context.Context, round int) (context.Context, func(bytesSent int64, activeLeaves int)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, fmt.Sprintf("round.%d", round))
	return ctx, func(bytesSent int64, activeLeaves int) {
		span.SetAttributes(
			attribute.Int64("bytes_sent", bytesSent),
			attribute.Int("active_leaves", activeLeaves),
		)
		span.End()
	}
}

// Tracer returns the package-wide tracer, exposed for components that want
// to start spans not covered by PhaseSpan/RoundSpan.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
