package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider    *metric.MeterProvider
	meter            otelmetric.Meter
	workflowCounter  otelmetric.Int64Counter
	workflowDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	workflowCounter, _ := meter.Int64Counter(
		"workflows.processed",
		otelmetric.WithDescription("Number of enrich/notify workflows processed"),
	)

	workflowDuration, _ := meter.Float64Histogram(
		"workflows.duration",
		otelmetric.WithDescription("Workflow processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:    provider,
		meter:            meter,
		workflowCounter:  workflowCounter,
		workflowDuration: workflowDuration,
	}
}

func (o *Observability) RecordWorkflow(ctx context.Context, workflow, status string) {
	if o.workflowCounter != nil {
		o.workflowCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("workflow", workflow),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordWorkflowDuration(ctx context.Context, workflow string, duration time.Duration, status string) {
	if o.workflowDuration != nil {
		o.workflowDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("workflow", workflow),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
