package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"

	"github.com/mtb-technology/reportflow/internal/types"
)

const (
	defaultBatchTimeout = 5 * time.Second
	defaultServiceName  = "reportflow"
)

// TracingConfig holds tracing initialization settings. SampleRate zero
// means sample everything.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	SampleRate  float64
	Insecure    bool
}

// TracingOption is a functional option for configuring tracing initialization.
type TracingOption func(*tracingOptions)

type tracingOptions struct {
	sampler      sdktrace.Sampler
	resource     *resource.Resource
	batchTimeout time.Duration
}

// WithSampler sets a custom sampler for the tracer provider.
func WithSampler(sampler sdktrace.Sampler) TracingOption {
	return func(o *tracingOptions) {
		o.sampler = sampler
	}
}

// WithResource sets a custom resource describing the telemetry producer.
func WithResource(res *resource.Resource) TracingOption {
	return func(o *tracingOptions) {
		o.resource = res
	}
}

// WithBatchTimeout sets the maximum time between batch exports.
func WithBatchTimeout(timeout time.Duration) TracingOption {
	return func(o *tracingOptions) {
		o.batchTimeout = timeout
	}
}

// InitTracing initializes distributed tracing with an OTLP gRPC exporter.
// When cfg.Enabled is false it returns a provider without exporters, which
// records nothing and has no network dependencies.
//
// The returned provider is also installed as the global OpenTelemetry
// tracer provider.
func InitTracing(ctx context.Context, cfg TracingConfig, opts ...TracingOption) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled {
		return sdktrace.NewTracerProvider(), nil
	}
	if cfg.Endpoint == "" {
		return nil, types.NewError(types.TRACING_INIT_FAILED, "tracing endpoint is required")
	}

	options := &tracingOptions{
		batchTimeout: defaultBatchTimeout,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.sampler == nil {
		rate := cfg.SampleRate
		if rate <= 0 || rate > 1 {
			rate = 1
		}
		options.sampler = sdktrace.TraceIDRatioBased(rate)
	}

	if options.resource == nil {
		serviceName := cfg.ServiceName
		if serviceName == "" {
			serviceName = defaultServiceName
		}
		res, err := resource.New(ctx,
			resource.WithAttributes(semconv.ServiceName(serviceName)),
			resource.WithFromEnv(),
			resource.WithTelemetrySDK(),
		)
		if err != nil {
			return nil, types.WrapError(types.TRACING_INIT_FAILED, "failed to create resource", err)
		}
		options.resource = res
	}

	otlpOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		otlpOpts = append(otlpOpts, otlptracegrpc.WithInsecure())
	} else {
		otlpOpts = append(otlpOpts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(nil)))
	}

	exporter, err := otlptracegrpc.New(ctx, otlpOpts...)
	if err != nil {
		return nil, types.WrapError(types.TRACING_INIT_FAILED, "failed to connect trace exporter", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(options.batchTimeout),
		),
		sdktrace.WithSampler(options.sampler),
		sdktrace.WithResource(options.resource),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// ShutdownTracing flushes pending spans and shuts the provider down. Call
// before process exit with a context timeout of a few seconds.
func ShutdownTracing(ctx context.Context, provider *sdktrace.TracerProvider) error {
	if provider == nil {
		return nil
	}
	if err := provider.Shutdown(ctx); err != nil {
		return types.WrapError(types.TRACING_SHUTDOWN_FAILED, "failed to shutdown tracer provider", err)
	}
	return nil
}
