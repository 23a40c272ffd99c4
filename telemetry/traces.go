package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys.
const (
	AttrFlow      = "walletkit.flow"
	AttrFactor    = "walletkit.factor"
	AttrRPCMethod = "walletkit.rpc.method"
	AttrAppID     = "walletkit.app.id"
)

func tracer() trace.Tracer {
	return otel.Tracer("github.com/getkayan/walletkit")
}

// SpanFlow starts a span covering one begin-flow round-trip.
func SpanFlow(ctx context.Context, flow string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "walletkit.flow.begin",
		trace.WithAttributes(attribute.String(AttrFlow, flow)))
}

// SpanFactor starts a span covering one factor submission.
func SpanFactor(ctx context.Context, factor string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "walletkit.flow.factor",
		trace.WithAttributes(attribute.String(AttrFactor, factor)))
}

// SpanRPC starts a span covering one cross-context RPC call.
func SpanRPC(ctx context.Context, method string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "walletkit.rpc",
		trace.WithAttributes(attribute.String(AttrRPCMethod, method)))
}

// EndSpan records err (if any) and ends the span.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
