package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers. A nil *Telemetry
// and a disabled one are both valid and record nothing.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	exporter       *prometheus.Exporter
	registry       *promclient.Registry

	// RED Metrics (Rate, Errors, Duration)
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Business Metrics
	transfersTotal      metric.Int64Counter
	transfersActive     metric.Int64UpDownCounter
	transferDuration    metric.Float64Histogram
	transferBytes       metric.Int64Counter
	notificationsTotal  metric.Int64Counter
	notificationBackoff metric.Float64Histogram
	sinkCallsTotal      metric.Int64Counter
	sinkCallDuration    metric.Float64Histogram
	lockRejections      metric.Int64Counter
	dbOperationsTotal   metric.Int64Counter
	dbOperationDuration metric.Float64Histogram
	filesCleaned        metric.Int64Counter

	// System health
	systemErrors metric.Int64Counter
	systemUptime metric.Float64Gauge
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// OTLPEndpoint, when set, also pushes metrics over OTLP/gRPC.
	OTLPEndpoint string
}

// New creates a new telemetry instance.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	// Each instance gathers from its own registry so New can run more than once
	// per process.
	registry := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter)))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(meterProvider)

	// Spans are not exported; they exist so log lines carry trace and span ids.
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tracerProvider)

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
		exporter:       exporter,
		registry:       registry,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	// Go runtime metrics (goroutines, memory, GC)
	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	go t.collectSystemMetrics(ctx)

	return t, nil
}

// Tracer returns the OpenTelemetry tracer, a no-op one when disabled.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.Tracer("noop")
	}

	return t.tracer
}

// Meter returns the OpenTelemetry meter.
func (t *Telemetry) Meter() metric.Meter {
	if t == nil {
		return nil
	}

	return t.meter
}

// RecordHTTPRequest records HTTP request metrics. route must be a pattern, not
// a raw path.
func (t *Telemetry) RecordHTTPRequest(ctx context.Context, method, route, status string, duration time.Duration) {
	if t == nil || t.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", status),
	)

	t.httpRequestsTotal.Add(ctx, 1, attrs)
	t.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight(ctx context.Context) {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight(ctx context.Context) {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, -1)
	}
}

// RecordTransfer records a finished transfer session.
func (t *Telemetry) RecordTransfer(ctx context.Context, direction, status string, duration time.Duration, bytes int64) {
	if t == nil || t.transfersTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("status", status),
	)

	t.transfersTotal.Add(ctx, 1, attrs)
	t.transferDuration.Record(ctx, duration.Seconds(), attrs)

	if bytes > 0 {
		t.transferBytes.Add(ctx, bytes, metric.WithAttributes(attribute.String("direction", direction)))
	}
}

// IncrementActiveTransfers increments active transfers counter.
func (t *Telemetry) IncrementActiveTransfers(ctx context.Context) {
	if t != nil && t.transfersActive != nil {
		t.transfersActive.Add(ctx, 1)
	}
}

// DecrementActiveTransfers decrements active transfers counter.
func (t *Telemetry) DecrementActiveTransfers(ctx context.Context) {
	if t != nil && t.transfersActive != nil {
		t.transfersActive.Add(ctx, -1)
	}
}

// RecordNotification counts what happened to a progress snapshot:
// delivered, suppressed, rate_limited or failed.
func (t *Telemetry) RecordNotification(ctx context.Context, result string) {
	if t != nil && t.notificationsTotal != nil {
		t.notificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

// RecordBackoff records the pause requested by a rate-limited sink.
func (t *Telemetry) RecordBackoff(ctx context.Context, wait time.Duration) {
	if t != nil && t.notificationBackoff != nil {
		t.notificationBackoff.Record(ctx, wait.Seconds())
	}
}

// RecordSinkCall records one call to a notification sink.
func (t *Telemetry) RecordSinkCall(ctx context.Context, sink, result string, duration time.Duration) {
	if t == nil || t.sinkCallsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("sink", sink),
		attribute.String("result", result),
	)

	t.sinkCallsTotal.Add(ctx, 1, attrs)
	t.sinkCallDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordLockRejection counts transfers refused because the user was busy.
func (t *Telemetry) RecordLockRejection(ctx context.Context) {
	if t != nil && t.lockRejections != nil {
		t.lockRejections.Add(ctx, 1)
	}
}

// RecordDBOperation records database operation metrics.
func (t *Telemetry) RecordDBOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if t == nil || t.dbOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	t.dbOperationsTotal.Add(ctx, 1, attrs)
	t.dbOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFilesCleaned counts work files removed by the cleanup loop.
func (t *Telemetry) RecordFilesCleaned(ctx context.Context, n int) {
	if t != nil && t.filesCleaned != nil && n > 0 {
		t.filesCleaned.Add(ctx, int64(n))
	}
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(ctx context.Context, component, errorType string) {
	if t != nil && t.systemErrors != nil {
		t.systemErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("component", component),
				attribute.String("error_type", errorType),
			),
		)
	}
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown gracefully shuts down the telemetry system.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error

	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}

	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

// initializeMetrics creates all metric instruments.
func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeREDMetrics(); err != nil {
		return err
	}

	if err := t.initializeBusinessMetrics(); err != nil {
		return err
	}

	return t.initializeSystemMetrics()
}

func (t *Telemetry) initializeREDMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeBusinessMetrics() error {
	var err error

	t.transfersTotal, err = t.meter.Int64Counter(
		"transfers_total",
		metric.WithDescription("Total number of transfer sessions by direction and final status"),
	)
	if err != nil {
		return fmt.Errorf("failed to create transfers_total counter: %w", err)
	}

	t.transfersActive, err = t.meter.Int64UpDownCounter(
		"transfers_active",
		metric.WithDescription("Number of active transfer sessions"),
	)
	if err != nil {
		return fmt.Errorf("failed to create transfers_active counter: %w", err)
	}

	t.transferDuration, err = t.meter.Float64Histogram(
		"transfer_duration_seconds",
		metric.WithDescription("Transfer session duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create transfer_duration histogram: %w", err)
	}

	t.transferBytes, err = t.meter.Int64Counter(
		"transfer_bytes_total",
		metric.WithDescription("Bytes moved by transfer sessions"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create transfer_bytes counter: %w", err)
	}

	t.notificationsTotal, err = t.meter.Int64Counter(
		"notifications_total",
		metric.WithDescription("Progress snapshots by notification outcome"),
	)
	if err != nil {
		return fmt.Errorf("failed to create notifications_total counter: %w", err)
	}

	t.notificationBackoff, err = t.meter.Float64Histogram(
		"notification_backoff_seconds",
		metric.WithDescription("Pause requested by rate-limited sinks"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create notification_backoff histogram: %w", err)
	}

	t.sinkCallsTotal, err = t.meter.Int64Counter(
		"sink_calls_total",
		metric.WithDescription("Calls to notification sinks"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sink_calls_total counter: %w", err)
	}

	t.sinkCallDuration, err = t.meter.Float64Histogram(
		"sink_call_duration_seconds",
		metric.WithDescription("Notification sink call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sink_call_duration histogram: %w", err)
	}

	t.lockRejections, err = t.meter.Int64Counter(
		"transfer_lock_rejections_total",
		metric.WithDescription("Transfers refused because the user already had one running"),
	)
	if err != nil {
		return fmt.Errorf("failed to create transfer_lock_rejections counter: %w", err)
	}

	t.dbOperationsTotal, err = t.meter.Int64Counter(
		"db_operations_total",
		metric.WithDescription("Total number of database operations"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operations_total counter: %w", err)
	}

	t.dbOperationDuration, err = t.meter.Float64Histogram(
		"db_operation_duration_seconds",
		metric.WithDescription("Database operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create db_operation_duration histogram: %w", err)
	}

	t.filesCleaned, err = t.meter.Int64Counter(
		"work_files_cleaned_total",
		metric.WithDescription("Expired work files removed"),
	)
	if err != nil {
		return fmt.Errorf("failed to create work_files_cleaned counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeSystemMetrics() error {
	var err error

	t.systemErrors, err = t.meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_errors counter: %w", err)
	}

	t.systemUptime, err = t.meter.Float64Gauge(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_uptime gauge: %w", err)
	}

	return nil
}

// collectSystemMetrics updates the uptime gauge periodically.
func (t *Telemetry) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.systemUptime.Record(ctx, time.Since(startTime).Seconds())
		}
	}
}
