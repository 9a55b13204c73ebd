package otelhelper

import (
	"github.com/dukex/bizflow/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ErrorKindKey = "bizflow.error.kind"
	RetryableKey = "bizflow.error.retryable"
)

// SetError marks span failed and tags it with the error's taxonomy class.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.String(ErrorKindKey, protocol.Kind(err).Error()),
		attribute.Bool(RetryableKey, protocol.IsRetryable(err)),
	)

	if len(attrs) > 0 {
		span.AddEvent("step_failed", trace.WithAttributes(attrs...))
	}
}
