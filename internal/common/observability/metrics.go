package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"

	"decision-workers/internal/common/logger"
)

// Observability records per-job OpenTelemetry metrics and spans.
type Observability struct {
	meterProvider *metric.MeterProvider
	tracer        trace.Tracer
	jobCounter    otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
	logger        logger.Logger
}

func New(serviceName string, log logger.Logger) *Observability {
	log = logger.Component(log, "observability")
	o := &Observability{
		tracer: otel.Tracer(serviceName),
		logger: log,
	}

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("prometheus exporter unavailable, otel metrics disabled", map[string]interface{}{
			"error": err.Error(),
		})
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	jobCounter, err := meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	if err != nil {
		log.Warn("jobs.processed counter unavailable", map[string]interface{}{"error": err.Error()})
	}

	jobDuration, err := meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		log.Warn("jobs.duration histogram unavailable", map[string]interface{}{"error": err.Error()})
	}

	o.meterProvider = provider
	o.jobCounter = jobCounter
	o.jobDuration = jobDuration
	return o
}

// Noop returns an Observability that records nothing.
func Noop() *Observability {
	return &Observability{tracer: otel.Tracer("noop"), logger: logger.NewNoOpLogger()}
}

// StartJobSpan opens a span for one job of taskType.
func (o *Observability) StartJobSpan(ctx context.Context, taskType string, jobKey int64) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, taskType, trace.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.Int64("job_key", jobKey),
	))
}

// EndJob records the outcome of a job started with StartJobSpan.
func (o *Observability) EndJob(ctx context.Context, span trace.Span, taskType string, started time.Time, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	o.RecordJobProcessed(ctx, taskType, status)
	o.RecordJobDuration(ctx, taskType, time.Since(started), status)
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.meterProvider.Shutdown(ctx); err != nil {
		o.logger.Warn("meter provider shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}
