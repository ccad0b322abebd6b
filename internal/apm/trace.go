package apm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans under one instrumentation scope. The global provider is
// looked up per span, so a provider installed after construction is used.
type Tracer struct {
	scope string
}

// NewTracer returns a Tracer for scope.
func NewTracer(scope string) Tracer {
	return Tracer{scope: scope}
}

// Start opens a span named name carrying attrs.
func (t Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, s := otel.Tracer(t.scope).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Span{span: s}
}

// Span is a started span.
type Span struct {
	span trace.Span
}

func (s *Span) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

func (s *Span) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// NoticeError records err and marks the span failed.
func (s *Span) NoticeError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *Span) End() {
	s.span.End()
}
