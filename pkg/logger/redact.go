// Package logger provides privacy-aware logging helpers for the diagnostics service
package logger

import (
	"context"
	"log/slog"

	"github.com/armorclaw/diagnostics/pkg/privacy"
)

// RedactingHandler is a slog.Handler middleware that scrubs personal
// data before records reach the wrapped handler. Messages and string
// attribute values are pattern-redacted; attributes whose key names a
// credential (password, token, secret, key, auth) are blanked entirely.
type RedactingHandler struct {
	inner    slog.Handler
	scrubber *privacy.Scrubber
}

// NewRedactingHandler wraps inner with scrubbing backed by scrubber.
func NewRedactingHandler(inner slog.Handler, scrubber *privacy.Scrubber) *RedactingHandler {
	return &RedactingHandler{
		inner:    inner,
		scrubber: scrubber,
	}
}

// Enabled reports whether the wrapped handler accepts records at level.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle scrubs the record message and attributes, then delegates.
func (h *RedactingHandler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, h.scrubber.Redact(rec.Message), rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(h.redactAttr(attr))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

// WithAttrs scrubs the pre-bound attributes before handing them down.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		out[i] = h.redactAttr(attr)
	}
	return &RedactingHandler{
		inner:    h.inner.WithAttrs(out),
		scrubber: h.scrubber,
	}
}

// WithGroup delegates grouping to the wrapped handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{
		inner:    h.inner.WithGroup(name),
		scrubber: h.scrubber,
	}
}

func (h *RedactingHandler) redactAttr(attr slog.Attr) slog.Attr {
	if privacy.SensitiveKey(attr.Key) {
		return slog.String(attr.Key, "[REDACTED]")
	}
	switch attr.Value.Kind() {
	case slog.KindString:
		return slog.String(attr.Key, h.scrubber.Redact(attr.Value.String()))
	case slog.KindGroup:
		group := attr.Value.Group()
		members := make([]any, 0, len(group))
		for _, member := range group {
			members = append(members, h.redactAttr(member))
		}
		return slog.Group(attr.Key, members...)
	default:
		return attr
	}
}
