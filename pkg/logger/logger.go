// Package logger builds the JSON slog logger used by the bridge and tags
// records with the sync run, the receipt in flight and the active span.
package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by every component that logs about a sync run.
const (
	AttrService   = "service"
	AttrRunID     = "run_id"
	AttrReceiptID = "receipt_id"
	AttrTraceID   = "trace_id"
	AttrSpanID    = "span_id"
)

// NewHandler returns the JSON handler for level writing to w. Source
// positions are added at debug level only.
func NewHandler(level string, w io.Writer) slog.Handler {
	lvl := ParseLevel(level)
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})
}

// NewWithHandler tags every record produced by h with the service name.
func NewWithHandler(service string, h slog.Handler) *slog.Logger {
	return slog.New(h).With(slog.String(AttrService, service))
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// scope is what a context knows about the work in progress.
type scope struct {
	runID     string
	receiptID string
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

// WithRunID returns ctx tagged with the sync run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	s := scopeFrom(ctx)
	s.runID = id
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithReceiptID returns ctx tagged with the source receipt being processed.
// The run identifier, if any, is kept.
func WithReceiptID(ctx context.Context, id string) context.Context {
	s := scopeFrom(ctx)
	s.receiptID = id
	return context.WithValue(ctx, scopeKey{}, s)
}

// RunIDFromContext returns the sync run identifier, or "".
func RunIDFromContext(ctx context.Context) string {
	return scopeFrom(ctx).runID
}

// ReceiptIDFromContext returns the receipt identifier, or "".
func ReceiptIDFromContext(ctx context.Context) string {
	return scopeFrom(ctx).receiptID
}

// WithContext returns l with the run, receipt and span identifiers found in
// ctx. Empty values are left out.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	s := scopeFrom(ctx)
	var attrs []any
	if s.runID != "" {
		attrs = append(attrs, slog.String(AttrRunID, s.runID))
	}
	if s.receiptID != "" {
		attrs = append(attrs, slog.String(AttrReceiptID, s.receiptID))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String(AttrTraceID, sc.TraceID().String()),
			slog.String(AttrSpanID, sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
