package crawler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/sitemirror/internal/handler"
)

// Drop reasons reported in diagnostics.
const (
	reasonFiltered  = "filtered"
	reasonTransport = "transport"
	reasonPanic     = "panic"
	reasonInvalid   = "invalid"
	reasonCancelled = "cancelled"
	reasonOther     = "other"
)

// DropReason classifies why a reference was not rewritten.
func DropReason(err error) string {
	switch {
	case err == nil:
		return reasonOther
	case errors.Is(err, ErrFilteredByPolicy):
		return reasonFiltered
	case errors.Is(err, ErrTransportFailure):
		return reasonTransport
	case errors.Is(err, ErrPanic), errors.Is(err, handler.ErrPanic):
		return reasonPanic
	case errors.Is(err, ErrInvalidURL), errors.Is(err, handler.ErrInvalidReference),
		errors.Is(err, handler.ErrUnsupportedScheme):
		return reasonInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return reasonCancelled
	default:
		return reasonOther
	}
}

// LogObserver reports dropped references through slog.
// Filtered references are expected and logged at debug level; everything
// else is a warning.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

// ReferenceDropped implements handler.Observer.
func (o *LogObserver) ReferenceDropped(ev handler.Event) {
	reason := DropReason(ev.Err)
	level := slog.LevelWarn
	if reason == reasonFiltered || reason == reasonCancelled || ev.Err == nil {
		level = slog.LevelDebug
	}

	attrs := []any{
		"reference", ev.Reference.Raw,
		"url", ev.URL,
		"reason", reason,
	}
	if ev.Parent != nil {
		attrs = append(attrs, "parent", ev.Parent.URL)
	}
	if ev.Err != nil {
		attrs = append(attrs, "error", ev.Err)
	}
	o.logger.Log(context.Background(), level, "reference kept unrewritten", attrs...)
}
