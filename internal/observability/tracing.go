package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	dbTracerName       = "costellobot/trust"
	dispatchTracerName = "costellobot/dispatch"
)

type contextKey string

const (
	requestIDKey  contextKey = "observability.request_id"
	deliveryIDKey contextKey = "observability.delivery_id"
)

// Span is the application-level tracing span contract.
type Span interface {
	End()
	RecordError(error)
}

type otelSpan struct {
	inner trace.Span
}

// StartDBSpan starts a database tracing span for one trust store query.
func StartDBSpan(ctx context.Context, queryName, operation string) (context.Context, Span) {
	queryName = strings.TrimSpace(queryName)
	if queryName == "" {
		queryName = "unknown"
	}
	ctx, span := otel.Tracer(dbTracerName).Start(ctx, "db."+queryName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system.name", "sqlite"),
			attribute.String("db.query_name", queryName),
			attribute.String("db.operation", strings.TrimSpace(operation)),
		),
	)
	return ctx, otelSpan{inner: span}
}

// StartDispatchSpan starts a tracing span covering one webhook event dispatch.
func StartDispatchSpan(ctx context.Context, event, deliveryID string) (context.Context, Span) {
	event = strings.TrimSpace(event)
	if event == "" {
		event = "unknown"
	}
	ctx, span := otel.Tracer(dispatchTracerName).Start(ctx, "dispatch."+event,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("github.event", event),
			attribute.String("github.delivery", strings.TrimSpace(deliveryID)),
		),
	)
	return ctx, otelSpan{inner: span}
}

// WithRequestMetadata enriches context and current span with request metadata.
func WithRequestMetadata(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	if span := trace.SpanFromContext(ctx); span != nil {
		span.SetAttributes(attribute.String("request.id", requestID))
	}
	return ctx
}

// WithDeliveryID enriches context and current span with the webhook delivery id.
func WithDeliveryID(ctx context.Context, deliveryID string) context.Context {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return ctx
	}
	ctx = context.WithValue(ctx, deliveryIDKey, deliveryID)
	if span := trace.SpanFromContext(ctx); span != nil {
		span.SetAttributes(attribute.String("github.delivery", deliveryID))
	}
	return ctx
}

// RequestIDFromContext extracts request id.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(requestIDKey).(string)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

// DeliveryIDFromContext extracts the webhook delivery id.
func DeliveryIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(deliveryIDKey).(string)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (s otelSpan) End() {
	if s.inner == nil {
		return
	}
	s.inner.End()
}

func (s otelSpan) RecordError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.RecordError(err)
	s.inner.SetStatus(codes.Error, err.Error())
}
