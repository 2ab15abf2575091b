package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "kept", String("town", "T1"), Int("tax", 7), Err(errors.New("boom")))

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "kept", recs[0]["msg"])
	assert.Equal(t, "T1", recs[0]["town"])
	assert.EqualValues(t, 7, recs[0]["tax"])
	assert.Equal(t, "boom", recs[0]["error"])
}

func TestWithQueryLoggerReusesID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx, outer := WithQueryLogger(context.Background(), base)
	id := QueryIDFromContext(ctx)
	require.NotEmpty(t, id)

	ctx2, inner := WithQueryLogger(ctx, base)
	assert.Equal(t, id, QueryIDFromContext(ctx2))

	outer.Info(ctx, "outer")
	inner.Debug(ctx2, "inner")

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, id, rec["query_id"])
	}
}

func TestContextLogger(t *testing.T) {
	assert.Nil(t, LoggerFromContext(context.Background()))

	l := FromSlog(slogt.New(t))
	ctx := ContextWithLogger(context.Background(), l)
	assert.Same(t, l, LoggerFromContext(ctx))
	LoggerFromContext(ctx).Info(ctx, "visible in test output", Strings("route", []string{"A", "B"}))

	ctx = ContextWithLogger(context.Background(), nil)
	assert.Equal(t, Noop(), LoggerFromContext(ctx))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"WARNING": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in).Level().String(), in)
	}
}

func TestFromSlogNil(t *testing.T) {
	assert.Equal(t, Noop(), FromSlog(nil))
}
