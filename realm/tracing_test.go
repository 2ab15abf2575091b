package realm

import (
	"context"
	"testing"

	"github.com/signalsfoundry/realm/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestRouteSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx := context.Background()
	r := New(logging.Noop(), WithTracer(tp.Tracer("realm-test")))
	addTowns(t, r, townSpec{id: "a"}, townSpec{id: "b", x: 3}, townSpec{id: "c", x: 6})
	require.NoError(t, r.AddRoad("a", "b"))
	require.NoError(t, r.AddRoad("b", "c"))

	r.ShortestRoute(ctx, "a", "c")
	r.LeastTownsRoute(ctx, "a", "missing")
	r.TrimRoadNetwork(ctx)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	ok := spans[0]
	assert.Equal(t, "realm.shortest_route", ok.Name())
	towns, found := spanAttr(ok, "realm.route.towns")
	require.True(t, found)
	assert.EqualValues(t, 3, towns.AsInt64())
	from, _ := spanAttr(ok, "realm.from")
	assert.Equal(t, "a", from.AsString())
	assert.Equal(t, codes.Unset, ok.Status().Code)

	failed := spans[1]
	assert.Equal(t, "realm.least_towns_route", failed.Name())
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.NotEmpty(t, failed.Events(), "error should be recorded as an event")

	trim := spans[2]
	assert.Equal(t, "realm.trim_road_network", trim.Name())
	length, found := spanAttr(trim, "realm.roads.length")
	require.True(t, found)
	assert.EqualValues(t, 6, length.AsInt64())
}
