// Package telemetry exposes gate evaluation and transition metrics through
// OpenTelemetry with a Prometheus exporter.
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "phasegate"

var (
	AttrEdge    = attribute.Key("edge")
	AttrOutcome = attribute.Key("outcome")
	AttrCheck   = attribute.Key("check")
)

// Outcome labels.
const (
	OutcomePassed   = "passed"
	OutcomeBlocked  = "blocked"
	OutcomeIllegal  = "illegal"
	OutcomeError    = "error"
	OutcomeApplied  = "applied"
	OutcomeConflict = "conflict"
)

var (
	initOnce            sync.Once
	evaluationsCounter  metric.Int64Counter
	evaluationDuration  metric.Float64Histogram
	transitionsCounter  metric.Int64Counter
	dependencyErrsCount metric.Int64Counter
)

// InitMeterProvider installs a global MeterProvider backed by a fresh
// Prometheus registry and returns the handler that serves it.
func InitMeterProvider(ctx context.Context, serviceName string) (http.Handler, error) {
	if serviceName == "" {
		serviceName = "phasegate"
	}
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otelglobal.SetMeterProvider(provider)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}), nil
}

func Meter() metric.Meter {
	return otelglobal.Meter(meterName)
}

// InitMetrics creates the instruments once. Call after InitMeterProvider;
// the Record helpers are no-ops until then.
func InitMetrics() error {
	var err error
	initOnce.Do(func() {
		m := Meter()
		evaluationsCounter, err = m.Int64Counter("phasegate_evaluations_total",
			metric.WithDescription("Gate evaluations by edge and outcome"))
		if err != nil {
			return
		}
		evaluationDuration, err = m.Float64Histogram("phasegate_evaluation_duration_seconds",
			metric.WithDescription("Gate evaluation latency in seconds"), metric.WithUnit("s"))
		if err != nil {
			return
		}
		transitionsCounter, err = m.Int64Counter("phasegate_transitions_total",
			metric.WithDescription("Executed transitions by edge and result"))
		if err != nil {
			return
		}
		dependencyErrsCount, err = m.Int64Counter("phasegate_dependency_errors_total",
			metric.WithDescription("Record store failures during gate checks"))
	})
	return err
}

func RecordEvaluation(ctx context.Context, edge, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(AttrEdge.String(edge), AttrOutcome.String(outcome))
	if evaluationsCounter != nil {
		evaluationsCounter.Add(ctx, 1, attrs)
	}
	if evaluationDuration != nil {
		evaluationDuration.Record(ctx, d.Seconds(), attrs)
	}
}

func RecordTransition(ctx context.Context, edge, outcome string) {
	if transitionsCounter != nil {
		transitionsCounter.Add(ctx, 1, metric.WithAttributes(AttrEdge.String(edge), AttrOutcome.String(outcome)))
	}
}

func RecordDependencyError(ctx context.Context, edge, check string) {
	if dependencyErrsCount != nil {
		dependencyErrsCount.Add(ctx, 1, metric.WithAttributes(AttrEdge.String(edge), AttrCheck.String(check)))
	}
}
