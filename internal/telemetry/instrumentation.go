package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes here must stay low cardinality: operation names, directions
// and status values only. User ids, session ids and file names belong in logs.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation wraps fn in a span.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDBOperation(ctx, operation, status, time.Since(start))

	return err
}

// InstrumentTransfer wraps a transfer session in a span. Counters are recorded
// by the caller, which knows the final session status.
func (t *Telemetry) InstrumentTransfer(ctx context.Context, direction string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	return t.InstrumentOperation(ctx, "transfer_"+direction, "transfer", fn)
}

// InstrumentSinkCall wraps one notification sink call. result classifies the
// returned error so rate limits are told apart from failures.
func (t *Telemetry) InstrumentSinkCall(ctx context.Context, sink string, result func(error) string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "sink_"+sink, "notifier", fn)

	t.RecordSinkCall(ctx, sink, result(err), time.Since(start))

	return err
}
