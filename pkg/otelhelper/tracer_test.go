package otelhelper

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanAndSetError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, span := StartSpan(context.Background(), tracer, "workflow.run", attribute.String(WorkflowIDKey, "wf-1"))
	SetError(span, errors.New("boom"), attribute.String(StepIDKey, "mail"))
	span.End()

	spans := recorder.Ended()
	if assert.Len(t, spans, 1) {
		assert.Equal(t, "workflow.run", spans[0].Name())
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		assert.Contains(t, spans[0].Attributes(), attribute.String(WorkflowIDKey, "wf-1"))
		assert.Contains(t, spans[0].Attributes(), attribute.String(ErrorKindKey, "transient error"))
		assert.Contains(t, spans[0].Attributes(), attribute.Bool(RetryableKey, true))
	}
}

func TestSetError_Classified(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := StartSpan(context.Background(), provider.Tracer("test"), "step.run")
	SetError(span, protocol.Validationf("missing recipient"))
	span.End()

	spans := recorder.Ended()
	if assert.Len(t, spans, 1) {
		assert.Contains(t, spans[0].Attributes(), attribute.String(ErrorKindKey, "validation error"))
		assert.Contains(t, spans[0].Attributes(), attribute.Bool(RetryableKey, false))
		assert.Len(t, spans[0].Events(), 1)
	}
}

func TestNoopTracer(t *testing.T) {
	_, span := StartSpan(context.Background(), NoopTracer(), "noop")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
}
