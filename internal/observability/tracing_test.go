package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/signalsfoundry/realm/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func resetTracerProvider(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
}

func TestInitTracingOff(t *testing.T) {
	resetTracerProvider(t)

	shutdown, err := InitTracing(context.Background(), TracingConfig{}, logging.Noop())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	_, span := Tracer().Start(context.Background(), "realm.shortest_route")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestInitTracingRejectsBadConfig(t *testing.T) {
	for name, cfg := range map[string]TracingConfig{
		"unknown exporter": {Exporter: "carrier-pigeon"},
		"ratio above one":  {Exporter: ExporterStdout, RouteSampleRatio: 2},
		"negative ratio":   {Exporter: ExporterStdout, RouteSampleRatio: -0.5},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := InitTracing(context.Background(), cfg, nil)
			assert.ErrorIs(t, err, ErrTracingConfig)
		})
	}
}

func TestInitTracingStdoutKeepsRewritesWhenRoutesAreDropped(t *testing.T) {
	resetTracerProvider(t)
	var out bytes.Buffer

	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Exporter:         ExporterStdout,
		RouteSampleRatio: 0,
		Output:           &out,
		Attributes:       []attribute.KeyValue{attribute.Bool("realm.cycle_guard", true)},
	}, logging.Noop())
	require.NoError(t, err)

	for _, name := range []string{"realm.shortest_route", "realm.trim_road_network"} {
		_, span := Tracer().Start(context.Background(), name)
		span.End()
	}
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, out.String(), "realm.trim_road_network")
	assert.Contains(t, out.String(), "realm.cycle_guard")
	assert.NotContains(t, out.String(), "realm.shortest_route")
}

func TestRealmSampler(t *testing.T) {
	params := func(name string) sdktrace.SamplingParameters {
		return sdktrace.SamplingParameters{
			ParentContext: context.Background(),
			TraceID:       trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			Name:          name,
		}
	}

	none := NewRealmSampler(0)
	for _, name := range KeptSpans {
		assert.Equal(t, sdktrace.RecordAndSample, none.ShouldSample(params(name)).Decision, name)
	}
	assert.Equal(t, sdktrace.Drop, none.ShouldSample(params("realm.least_towns_route")).Decision)

	all := NewRealmSampler(1)
	assert.Equal(t, sdktrace.RecordAndSample, all.ShouldSample(params("realm.least_towns_route")).Decision)
	assert.Contains(t, all.Description(), "RealmSampler")
}

func TestShutdownWithTimeoutNil(t *testing.T) {
	ShutdownWithTimeout(context.Background(), nil, nil)
	called := false
	ShutdownWithTimeout(context.Background(), func(context.Context) error {
		called = true
		return nil
	}, nil)
	assert.True(t, called)
}
