// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/demeterhq/demeter/pkg/errors"
)

// Metrics tracks query throughput, capability latency, and error patterns.
type Metrics struct {
	queryCounter      metric.Int64Counter
	queryLatencyMs    metric.Float64Histogram
	iterationCounter  metric.Int64Counter
	capabilityLatency metric.Float64Histogram
	errorCounter      metric.Int64Counter
	recoveryCounter   metric.Int64Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
	metricsErr      error
)

// GetMetrics returns the process-wide metrics instance, creating it lazily.
func GetMetrics() (*Metrics, error) {
	metricsOnce.Do(func() {
		metricsInstance, metricsErr = newMetrics()
	})
	return metricsInstance, metricsErr
}

func newMetrics() (*Metrics, error) {
	meter := otel.Meter("demeter/orchestrator")

	queryCounter, err := meter.Int64Counter(
		"demeter.queries.total",
		metric.WithDescription("Total processed queries by mode and outcome"),
	)
	if err != nil {
		return nil, err
	}

	queryLatencyMs, err := meter.Float64Histogram(
		"demeter.queries.latency_ms",
		metric.WithDescription("End-to-end query latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	iterationCounter, err := meter.Int64Counter(
		"demeter.react.iterations",
		metric.WithDescription("Reasoning loop iterations executed"),
	)
	if err != nil {
		return nil, err
	}

	capabilityLatency, err := meter.Float64Histogram(
		"demeter.capability.latency_ms",
		metric.WithDescription("Capability invocation latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"demeter.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	recoveryCounter, err := meter.Int64Counter(
		"demeter.errors.recovered",
		metric.WithDescription("Successful error recoveries by code"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		queryCounter:      queryCounter,
		queryLatencyMs:    queryLatencyMs,
		iterationCounter:  iterationCounter,
		capabilityLatency: capabilityLatency,
		errorCounter:      errorCounter,
		recoveryCounter:   recoveryCounter,
	}, nil
}

// RecordQuery records one completed query.
func (m *Metrics) RecordQuery(ctx context.Context, mode string, success bool, latencyMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("success", success),
	)
	m.queryCounter.Add(ctx, 1, attrs)
	m.queryLatencyMs.Record(ctx, latencyMs, attrs)
}

// RecordIteration records one reasoning loop iteration.
func (m *Metrics) RecordIteration(ctx context.Context) {
	if m == nil {
		return
	}
	m.iterationCounter.Add(ctx, 1)
}

// RecordCapability records one capability invocation.
func (m *Metrics) RecordCapability(ctx context.Context, name string, success bool, latencyMs float64) {
	if m == nil {
		return
	}
	m.capabilityLatency.Record(ctx, latencyMs, metric.WithAttributes(
		attribute.String("capability", name),
		attribute.Bool("success", success),
	))
}

// RecordError records an error by code and component.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	de := errors.AsDemeterError(err)
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", string(de.Code)),
		attribute.String("component", component),
		attribute.String("recoverable", de.RecoverableString()),
	))
}

// RecordRecovery records a successful recovery from the given error code.
func (m *Metrics) RecordRecovery(ctx context.Context, code errors.ErrorCode) {
	if m == nil {
		return
	}
	m.recoveryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", string(code)),
	))
}
