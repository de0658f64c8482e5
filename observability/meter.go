package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/crossmatch/logger"
)

// InitMeter installs an OTLP HTTP meter provider as the global provider.
func InitMeter(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"endpoint", cfg.Endpoint,
		"interval", cfg.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// PipelineMetrics holds the instruments stages record into.
type PipelineMetrics struct {
	batchTotal    metric.Int64Counter
	batchItems    metric.Int64Counter
	batchDuration metric.Float64Histogram
	throttleWaits metric.Int64Counter
	sourceErrors  metric.Int64Counter
	stageActive   metric.Int64UpDownCounter
}

// NewPipelineMetrics creates the instruments on meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	var err error
	if m.batchTotal, err = meter.Int64Counter("pipeline.batch.total",
		metric.WithDescription("Batches dispatched to work functions")); err != nil {
		return nil, fmt.Errorf("creating pipeline.batch.total: %w", err)
	}
	if m.batchItems, err = meter.Int64Counter("pipeline.batch.items",
		metric.WithDescription("Items dispatched to work functions")); err != nil {
		return nil, fmt.Errorf("creating pipeline.batch.items: %w", err)
	}
	if m.batchDuration, err = meter.Float64Histogram("pipeline.batch.duration",
		metric.WithDescription("Work function duration"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("creating pipeline.batch.duration: %w", err)
	}
	if m.throttleWaits, err = meter.Int64Counter("pipeline.throttle.waits",
		metric.WithDescription("Batches delayed for lack of tokens")); err != nil {
		return nil, fmt.Errorf("creating pipeline.throttle.waits: %w", err)
	}
	if m.sourceErrors, err = meter.Int64Counter("pipeline.source.errors",
		metric.WithDescription("Failed backing source reads")); err != nil {
		return nil, fmt.Errorf("creating pipeline.source.errors: %w", err)
	}
	if m.stageActive, err = meter.Int64UpDownCounter("pipeline.stage.active",
		metric.WithDescription("Stages currently running")); err != nil {
		return nil, fmt.Errorf("creating pipeline.stage.active: %w", err)
	}
	return m, nil
}

// BatchDone records one work function call.
func (m *PipelineMetrics) BatchDone(ctx context.Context, op string, items int, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.batchTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", op),
		attribute.String("status", status),
	))
	stage := metric.WithAttributes(attribute.String("stage", op))
	m.batchItems.Add(ctx, int64(items), stage)
	m.batchDuration.Record(ctx, d.Seconds(), stage)
}

// ThrottleWait records a batch held back by an empty bucket.
func (m *PipelineMetrics) ThrottleWait(ctx context.Context, op string) {
	m.throttleWaits.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", op)))
}

// SourceError records a failed backing source read.
func (m *PipelineMetrics) SourceError(ctx context.Context, op string) {
	m.sourceErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", op)))
}

// StageActive moves the running-stage gauge by delta.
func (m *PipelineMetrics) StageActive(ctx context.Context, op string, delta int64) {
	m.stageActive.Add(ctx, delta, metric.WithAttributes(attribute.String("stage", op)))
}
