package observability

import (
	"context"
	"strconv"

	"feedbackhub/internal/config"
	contextutils "feedbackhub/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes OpenTelemetry metrics
func InitMetrics(cfg *config.OpenTelemetryConfig) (result0 *metric.MeterProvider, err error) {
	ctx := context.Background()

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otel resource: %w", err)
	}

	var exporter metric.Exporter
	switch cfg.Protocol {
	case "grpc":
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otlp grpc metric exporter: %w", err)
		}
		exporter = exp
	case "http":
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithHeaders(cfg.Headers),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exp, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to create otlp http metric exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "unsupported otel protocol: %s", cfg.Protocol)
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter)),
		metric.WithResource(res),
	)
	return mp, nil
}

// Metrics holds the domain counters. The zero value is not usable; build it with NewMetrics.
type Metrics struct {
	submissions   otelmetric.Int64Counter
	statusChanges otelmetric.Int64Counter
	externalCalls otelmetric.Int64Counter
	rateLimited   otelmetric.Int64Counter
}

// NewMetrics registers the domain counters on mp. A nil provider falls back to
// the global one, which is a no-op until SetupObservability installs an SDK provider.
func NewMetrics(mp otelmetric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("feedbackhub")

	m := &Metrics{}
	var err error
	if m.submissions, err = meter.Int64Counter("feedback.submissions",
		otelmetric.WithDescription("Feedback items created")); err != nil {
		return nil, contextutils.WrapError(err, "failed to create feedback.submissions counter")
	}
	if m.statusChanges, err = meter.Int64Counter("feedback.status_changes",
		otelmetric.WithDescription("Feedback status transitions")); err != nil {
		return nil, contextutils.WrapError(err, "failed to create feedback.status_changes counter")
	}
	if m.externalCalls, err = meter.Int64Counter("external.api_calls",
		otelmetric.WithDescription("Calls to the external partner API")); err != nil {
		return nil, contextutils.WrapError(err, "failed to create external.api_calls counter")
	}
	if m.rateLimited, err = meter.Int64Counter("external.rate_limited",
		otelmetric.WithDescription("External calls rejected by the rate limiter")); err != nil {
		return nil, contextutils.WrapError(err, "failed to create external.rate_limited counter")
	}
	return m, nil
}

// RecordSubmission counts a created feedback item by origin kind
func (m *Metrics) RecordSubmission(ctx context.Context, origin string) {
	if m == nil {
		return
	}
	m.submissions.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("origin", origin)))
}

// RecordStatusChange counts a status transition
func (m *Metrics) RecordStatusChange(ctx context.Context, toStatus string) {
	if m == nil {
		return
	}
	m.statusChanges.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("to_status", toStatus)))
}

// RecordExternalCall counts one external API call
func (m *Metrics) RecordExternalCall(ctx context.Context, statusCode int, errorCode string) {
	if m == nil {
		return
	}
	m.externalCalls.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("status_code", strconv.Itoa(statusCode)),
		attribute.String("error_code", errorCode),
	))
}

// RecordRateLimited counts a rejected external call
func (m *Metrics) RecordRateLimited(ctx context.Context, systemName string) {
	if m == nil {
		return
	}
	m.rateLimited.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("system", systemName)))
}
