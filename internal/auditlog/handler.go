// Package auditlog mirrors saga log records into the persistent log store.
package auditlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
	"github.com/Swed0ua/Integration-SK-Surve/pkg/logger"
)

// Appender is the write side of repository.LogRepository.
type Appender interface {
	Append(ctx context.Context, entry *domain.LogEntry) error
}

// Handler forwards every record to next and appends those at or above level
// to the store. Store failures are reported through next and otherwise ignored.
type Handler struct {
	next      slog.Handler
	store     Appender
	level     slog.Leveler
	prefix    string
	attrs     []slog.Attr
	receiptID string
}

// NewHandler wraps next. A nil level defaults to info.
func NewHandler(next slog.Handler, store Appender, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{next: next, store: store, level: level}
}

// Enabled reports whether either the primary output or the store wants level l.
func (h *Handler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() || h.next.Enabled(ctx, l)
}

// Handle writes r to the primary handler and, when r is at or above the audit
// level, to the store.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.next.Enabled(ctx, r.Level) {
		err = h.next.Handle(ctx, r)
	}
	if r.Level < h.level.Level() {
		return err
	}

	entry := h.entry(ctx, r)
	if appendErr := h.store.Append(context.WithoutCancel(ctx), entry); appendErr != nil {
		fail := slog.NewRecord(time.Now(), slog.LevelError, "audit log write failed", 0)
		fail.AddAttrs(slog.String("error", appendErr.Error()), slog.String("audit_message", r.Message))
		_ = h.next.Handle(ctx, fail)
	}
	return err
}

// WithAttrs returns a handler that also remembers a receipt_id attribute.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	for _, a := range attrs {
		if a.Key == logger.AttrReceiptID && h.prefix == "" {
			clone.receiptID = a.Value.String()
		}
	}
	return &clone
}

// WithGroup returns a handler that qualifies later attributes with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *Handler) entry(ctx context.Context, r slog.Record) *domain.LogEntry {
	receiptID := h.receiptID
	var b strings.Builder
	b.WriteString(r.Message)

	write := func(a slog.Attr) {
		if a.Key == logger.AttrReceiptID && h.prefix == "" {
			receiptID = a.Value.String()
			return
		}
		if a.Key == logger.AttrService || a.Key == logger.AttrRunID {
			return
		}
		fmt.Fprintf(&b, " %s%s=%s", h.prefix, a.Key, a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})
	if receiptID == "" {
		receiptID = logger.ReceiptIDFromContext(ctx)
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := &domain.LogEntry{
		Level:     r.Level.String(),
		Message:   b.String(),
		Timestamp: ts.UTC(),
	}
	if receiptID != "" {
		entry.ReceiptID = &receiptID
	}
	return entry
}
