// Package observe provides OpenTelemetry integration for the StoryGate
// gateway: request metrics and an optional OTLP trace exporter.
package observe

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records gateway instruments: HTTP request counts, completion call
// durations, and safety rejections. A nil *Metrics is a valid no-op recorder
// so callers never need to guard their call sites.
type Metrics struct {
	requests           metric.Int64Counter
	completionDuration metric.Float64Histogram
	safetyRejections   metric.Int64Counter
}

// NewMetrics creates a Metrics that uses the given meter to create
// instruments for recording gateway activity.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	requests, err := meter.Int64Counter("storygate.http.requests",
		metric.WithDescription("Number of HTTP requests handled"),
	)
	if err != nil {
		return nil, err
	}

	completionDur, err := meter.Float64Histogram("storygate.completion.duration",
		metric.WithDescription("Duration of upstream completion calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	safety, err := meter.Int64Counter("storygate.safety.rejections",
		metric.WithDescription("Number of prompts or completions rejected by the safety filter"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requests:           requests,
		completionDuration: completionDur,
		safetyRejections:   safety,
	}, nil
}

// RecordRequest counts one handled HTTP request for the given route and
// response status.
func (m *Metrics) RecordRequest(ctx context.Context, route string, status int) {
	if m == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	))
}

// RecordCompletion records the duration of one upstream completion call.
// The operation is the gateway operation that triggered it, such as
// "generate" or "rewrite".
func (m *Metrics) RecordCompletion(ctx context.Context, operation string, seconds float64, success bool) {
	if m == nil {
		return
	}
	m.completionDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	))
}

// RecordSafetyRejection counts one safety-filter rejection. The stage is
// "input" for rejected prompts and "output" for rejected completions.
func (m *Metrics) RecordSafetyRejection(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.safetyRejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
	))
}
