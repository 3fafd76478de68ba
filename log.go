package srng

import (
	"io"
	"log/slog"
)

// Component tags log records by subsystem.
type Component string

const (
	ComponentSoc    Component = "soc"
	ComponentRing   Component = "ring"
	ComponentShadow Component = "shadow"
	ComponentWindow Component = "window"
)

func componentLogger(l *slog.Logger, c Component) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", string(c))
}

// NewLogger returns a text logger at the given level, convenient for
// Config.Logger.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
