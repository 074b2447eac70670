package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ShutdownFunc releases telemetry resources.
type ShutdownFunc func(ctx context.Context) error

// Setup initializes OpenTelemetry with a Prometheus exporter.
// Returns a shutdown function that must be called on exit.
func Setup(ctx context.Context, serviceName string) (ShutdownFunc, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// GatewayMetrics holds all OTel instruments for the gateway.
type GatewayMetrics struct {
	httpRequestsTotal       otelmetric.Int64Counter
	httpRequestDuration     otelmetric.Float64Histogram
	authValidationsTotal    otelmetric.Int64Counter
	forwardRequestsTotal    otelmetric.Int64Counter
	forwardDuration         otelmetric.Float64Histogram
	uploadJobsTotal         otelmetric.Int64Counter
	uploadQueueDepth        otelmetric.Int64UpDownCounter
	rateLimitDecisionsTotal otelmetric.Int64Counter
}

// NewGatewayMetrics creates and registers all gateway metrics.
func NewGatewayMetrics() (*GatewayMetrics, error) {
	meter := otel.Meter("composer-gateway")
	m := &GatewayMetrics{}
	var err error

	latencyBuckets := otelmetric.WithExplicitBucketBoundaries(
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
	)

	if m.httpRequestsTotal, err = meter.Int64Counter("composer_http_requests_total",
		otelmetric.WithDescription("Total HTTP requests")); err != nil {
		return nil, fmt.Errorf("creating http_requests_total: %w", err)
	}
	if m.httpRequestDuration, err = meter.Float64Histogram("composer_http_request_duration_seconds",
		otelmetric.WithDescription("HTTP request duration"), latencyBuckets); err != nil {
		return nil, fmt.Errorf("creating http_request_duration: %w", err)
	}
	if m.authValidationsTotal, err = meter.Int64Counter("composer_auth_validations_total",
		otelmetric.WithDescription("Total token validation calls by result")); err != nil {
		return nil, fmt.Errorf("creating auth_validations_total: %w", err)
	}
	if m.forwardRequestsTotal, err = meter.Int64Counter("composer_forward_requests_total",
		otelmetric.WithDescription("Total requests forwarded to peer services")); err != nil {
		return nil, fmt.Errorf("creating forward_requests_total: %w", err)
	}
	if m.forwardDuration, err = meter.Float64Histogram("composer_forward_duration_seconds",
		otelmetric.WithDescription("Peer service call duration"), latencyBuckets); err != nil {
		return nil, fmt.Errorf("creating forward_duration: %w", err)
	}
	if m.uploadJobsTotal, err = meter.Int64Counter("composer_upload_jobs_total",
		otelmetric.WithDescription("Total upload jobs by outcome")); err != nil {
		return nil, fmt.Errorf("creating upload_jobs_total: %w", err)
	}
	if m.uploadQueueDepth, err = meter.Int64UpDownCounter("composer_upload_queue_depth",
		otelmetric.WithDescription("Upload jobs queued or in flight")); err != nil {
		return nil, fmt.Errorf("creating upload_queue_depth: %w", err)
	}
	if m.rateLimitDecisionsTotal, err = meter.Int64Counter("composer_ratelimit_decisions_total",
		otelmetric.WithDescription("Total rate limit decisions")); err != nil {
		return nil, fmt.Errorf("creating ratelimit_decisions_total: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric.
func (m *GatewayMetrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, durationSec float64) {
	attrs := otelmetric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(status),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, durationSec, attrs)
}

// RecordAuthValidation records a token validation result
// (success, failure, or unavailable).
func (m *GatewayMetrics) RecordAuthValidation(ctx context.Context, result string) {
	m.authValidationsTotal.Add(ctx, 1, otelmetric.WithAttributes(resultAttr(result)))
}

// RecordForward records one call to a peer service.
func (m *GatewayMetrics) RecordForward(ctx context.Context, service string, status int, durationSec float64) {
	attrs := otelmetric.WithAttributes(
		serviceAttr(service),
		statusAttr(status),
	)
	m.forwardRequestsTotal.Add(ctx, 1, attrs)
	m.forwardDuration.Record(ctx, durationSec, attrs)
}

// RecordUploadJob records a finished upload job by outcome
// (completed, failed, or rejected for a full queue).
func (m *GatewayMetrics) RecordUploadJob(ctx context.Context, outcome string) {
	m.uploadJobsTotal.Add(ctx, 1, otelmetric.WithAttributes(resultAttr(outcome)))
}

// AddUploadQueueDepth adjusts the queued-or-in-flight upload gauge.
func (m *GatewayMetrics) AddUploadQueueDepth(ctx context.Context, delta int64) {
	m.uploadQueueDepth.Add(ctx, delta)
}

// RecordRateLimitDecision records a rate limit decision.
func (m *GatewayMetrics) RecordRateLimitDecision(ctx context.Context, layer, result string) {
	m.rateLimitDecisionsTotal.Add(ctx, 1, otelmetric.WithAttributes(
		layerAttr(layer),
		resultAttr(result),
	))
}
