// Package observability wires OpenTelemetry tracing and metrics for
// crossmatch runs and pushes end-of-run gauges to a Prometheus Pushgateway.
//
// Tracing and metrics export over OTLP HTTP:
//
//	tp, err := observability.InitTracer(ctx, cfg)
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, "stage.gmfe")
//	defer span.End()
//
// PipelineMetrics holds the per-stage instruments the scheduler records
// into. RunGauges is for batch jobs that exit before a scrape could happen.
package observability
