package observability

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/coverage-mapper/internal/logging"
)

// TracingConfig controls how the OpenTelemetry trace pipeline is set up.
type TracingConfig struct {
	// Enabled turns the whole pipeline on. When false InitTracing is a no-op.
	Enabled bool
	// Exporter selects the span exporter: "stdout" or "otlpgrpc".
	Exporter string
	// Endpoint is the OTLP collector address for the otlpgrpc exporter.
	Endpoint string
	// ServiceName is attached to every exported span.
	ServiceName string
	// SampleRatio is the fraction of root traces to sample, in [0, 1].
	SampleRatio float64
}

// TracingConfigFromEnv reads MAPPER_TRACING_* variables with sane defaults.
func TracingConfigFromEnv() TracingConfig {
	cfg := TracingConfig{
		Enabled:     false,
		Exporter:    "stdout",
		Endpoint:    "localhost:4317",
		ServiceName: "coverage-mapper",
		SampleRatio: 1.0,
	}
	if v := os.Getenv("MAPPER_TRACING_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("MAPPER_TRACING_EXPORTER"); v != "" {
		cfg.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("MAPPER_TRACING_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("MAPPER_TRACING_SERVICE"); v != "" {
		cfg.ServiceName = v
	}
	if v := os.Getenv("MAPPER_TRACING_SAMPLE_RATIO"); v != "" {
		var ratio float64
		if _, err := fmt.Sscanf(v, "%f", &ratio); err == nil && ratio >= 0 && ratio <= 1 {
			cfg.SampleRatio = ratio
		}
	}
	return cfg
}

// Tracing owns the installed tracer provider and its shutdown.
type Tracing struct {
	provider *sdktrace.TracerProvider
	log      logging.Logger
}

// InitTracing wires the exporter, resource, and sampler, and installs the
// provider globally. Returns a disabled Tracing when cfg.Enabled is false.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (*Tracing, error) {
	if log == nil {
		log = logging.Noop()
	}
	if !cfg.Enabled {
		return &Tracing{log: log}, nil
	}

	exporter, err := exporterFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing initialised",
		logging.String("exporter", cfg.Exporter),
		logging.String("service", cfg.ServiceName),
	)
	return &Tracing{provider: provider, log: log}, nil
}

func exporterFromConfig(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlpgrpc":
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes and stops the provider, bounding the wait.
func (t *Tracing) ShutdownWithTimeout(timeout time.Duration) {
	if t == nil || t.provider == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := t.provider.Shutdown(ctx); err != nil {
		t.log.Warn(ctx, "trace provider shutdown failed", logging.Err(err))
	}
}
