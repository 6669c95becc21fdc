package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func capture(t *testing.T, level string) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return NewWithHandler("syncbridge", NewHandler(level, &buf)), &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func spanContext(t *testing.T) trace.SpanContext {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewHandler_Level(t *testing.T) {
	l, buf := capture(t, "warn")
	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	out := lastLine(t, buf)
	assert.Equal(t, "kept", out["msg"])
	assert.Equal(t, "syncbridge", out[AttrService])
	assert.NotContains(t, out, slog.SourceKey)
}

func TestNewHandler_DebugAddsSource(t *testing.T) {
	l, buf := capture(t, "debug")
	l.Debug("where")
	assert.Contains(t, lastLine(t, buf), slog.SourceKey)
}

func TestScope(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RunIDFromContext(ctx))
	assert.Empty(t, ReceiptIDFromContext(ctx))

	runCtx := WithRunID(ctx, "run-1")
	receiptCtx := WithReceiptID(runCtx, "rcpt-9")

	assert.Equal(t, "run-1", RunIDFromContext(receiptCtx))
	assert.Equal(t, "rcpt-9", ReceiptIDFromContext(receiptCtx))
	assert.Empty(t, ReceiptIDFromContext(runCtx), "parent context unchanged")
}

func TestWithContext(t *testing.T) {
	sc := spanContext(t)

	tests := []struct {
		name    string
		ctx     context.Context
		want    map[string]string
		missing []string
	}{
		{
			name:    "empty",
			ctx:     context.Background(),
			missing: []string{AttrRunID, AttrReceiptID, AttrTraceID, AttrSpanID},
		},
		{
			name:    "run only",
			ctx:     WithRunID(context.Background(), "run-1"),
			want:    map[string]string{AttrRunID: "run-1"},
			missing: []string{AttrReceiptID, AttrTraceID},
		},
		{
			name: "run receipt and span",
			ctx: trace.ContextWithSpanContext(
				WithReceiptID(WithRunID(context.Background(), "run-1"), "rcpt-9"), sc),
			want: map[string]string{
				AttrRunID:     "run-1",
				AttrReceiptID: "rcpt-9",
				AttrTraceID:   "4bf92f3577b34da6a3ce929d0e0e4736",
				AttrSpanID:    "00f067aa0ba902b7",
			},
		},
		{
			name:    "span without run",
			ctx:     trace.ContextWithSpanContext(context.Background(), sc),
			want:    map[string]string{AttrTraceID: "4bf92f3577b34da6a3ce929d0e0e4736"},
			missing: []string{AttrRunID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := capture(t, "info")
			WithContext(tt.ctx, l).Info("hello")

			out := lastLine(t, buf)
			for k, v := range tt.want {
				assert.Equal(t, v, out[k], k)
			}
			for _, k := range tt.missing {
				assert.NotContains(t, out, k)
			}
		})
	}
}

func TestWithContext_NoFieldsReturnsSameLogger(t *testing.T) {
	l, _ := capture(t, "info")
	assert.Same(t, l, WithContext(context.Background(), l))
}
