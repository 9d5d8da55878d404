package tracelog

import (
	"context"
	"log/slog"
)

// SlogAdapter writes trace events to an slog.Logger.
// Useful for development when you want to see instrument traffic in the
// console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given
// slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("op", event.Op.String()),
	}

	if event.Driver != "" {
		attrs = append(attrs, slog.String("driver", event.Driver))
	}
	if event.Property != "" {
		attrs = append(attrs, slog.String("property", event.Property))
	}
	if event.Channel != "" {
		attrs = append(attrs, slog.String("channel", event.Channel))
	}
	if event.Command != "" {
		attrs = append(attrs, slog.String("command", event.Command))
	}
	if event.Attempt > 0 {
		attrs = append(attrs, slog.Int("attempt", event.Attempt))
	}
	if event.Value != "" {
		attrs = append(attrs, slog.String("value", event.Value))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "instrument", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
