package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/signalsfoundry/realm/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerName is the instrumentation scope of every realm span.
const TracerName = "github.com/signalsfoundry/realm"

// Exporter names accepted by TracingConfig.
const (
	ExporterNone   = ""
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// ErrTracingConfig is returned by InitTracing for a config it cannot use.
var ErrTracingConfig = errors.New("invalid tracing config")

// KeptSpans are never dropped by sampling. They mark the operations that
// rewrite the realm wholesale, so a trace of a session always shows them
// even when route queries are sampled down.
var KeptSpans = []string{
	"realm.load_scenario",
	"realm.trim_road_network",
}

// TracingConfig selects where realm spans go. An empty Exporter turns
// tracing off.
type TracingConfig struct {
	Exporter    string
	Endpoint    string // otlp collector, host:port
	ServiceName string
	// RouteSampleRatio is the fraction of route query spans kept. Spans in
	// KeptSpans are always kept.
	RouteSampleRatio float64
	// Output receives stdout exporter spans. Defaults to stderr so that
	// command results on stdout stay clean.
	Output io.Writer
	// Attributes are added to the trace resource, e.g. realm options.
	Attributes []attribute.KeyValue
}

func (c TracingConfig) validate() error {
	switch strings.ToLower(c.Exporter) {
	case ExporterNone, ExporterStdout, ExporterOTLP:
	default:
		return fmt.Errorf("%w: unknown exporter %q (want stdout or otlp)", ErrTracingConfig, c.Exporter)
	}
	if c.RouteSampleRatio < 0 || c.RouteSampleRatio > 1 {
		return fmt.Errorf("%w: route sample ratio %v outside [0,1]", ErrTracingConfig, c.RouteSampleRatio)
	}
	return nil
}

// InitTracing installs the global tracer provider for cfg and returns the
// function that flushes it. With tracing off it installs a noop provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if cfg.Exporter == ExporterNone {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug(ctx, "tracing off")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}

	service := cfg.ServiceName
	if service == "" {
		service = "realm"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		append([]attribute.KeyValue{attribute.String("service.name", service)}, cfg.Attributes...)...,
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(NewRealmSampler(cfg.RouteSampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing on",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", service),
		logging.String("route_sample_ratio", fmt.Sprintf("%0.2f", cfg.RouteSampleRatio)),
	)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	if strings.EqualFold(cfg.Exporter, ExporterOTLP) {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithoutTimestamps())
}

// realmSampler samples route queries by ratio and keeps KeptSpans.
type realmSampler struct {
	kept   map[string]bool
	routes sdktrace.Sampler
}

// NewRealmSampler returns a sampler that keeps every span named in
// KeptSpans and the given fraction of all others.
func NewRealmSampler(routeRatio float64) sdktrace.Sampler {
	kept := make(map[string]bool, len(KeptSpans))
	for _, name := range KeptSpans {
		kept[name] = true
	}
	return realmSampler{kept: kept, routes: sdktrace.TraceIDRatioBased(routeRatio)}
}

func (s realmSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if s.kept[p.Name] {
		return sdktrace.AlwaysSample().ShouldSample(p)
	}
	return s.routes.ShouldSample(p)
}

func (s realmSampler) Description() string {
	return "RealmSampler{" + s.routes.Description() + "}"
}

// ShutdownWithTimeout flushes spans, giving up after five seconds. Failures
// are logged, not returned.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}

// Tracer returns the realm tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
