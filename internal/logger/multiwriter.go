package logger

import (
	"context"
	"errors"
	"log/slog"
)

// multiWriterHandler fans each record out to several handlers, each applying its own level.
type multiWriterHandler struct {
	handlers []slog.Handler
}

func newMultiWriterHandler(handlers ...slog.Handler) slog.Handler {
	return &multiWriterHandler{handlers: handlers}
}

func (h *multiWriterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

//nolint:gocritic // slog.Handler requires the record by value
func (h *multiWriterHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *multiWriterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &multiWriterHandler{handlers: mapHandlers(h.handlers, func(sh slog.Handler) slog.Handler {
		return sh.WithAttrs(attrs)
	})}
}

func (h *multiWriterHandler) WithGroup(name string) slog.Handler {
	return &multiWriterHandler{handlers: mapHandlers(h.handlers, func(sh slog.Handler) slog.Handler {
		return sh.WithGroup(name)
	})}
}

func mapHandlers(in []slog.Handler, fn func(slog.Handler) slog.Handler) []slog.Handler {
	out := make([]slog.Handler, len(in))
	for i, h := range in {
		out[i] = fn(h)
	}
	return out
}
