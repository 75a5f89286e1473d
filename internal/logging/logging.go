// internal/logging/logging.go
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// ParseLevel maps a config level name to a slog level; unknown names give Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the process logger: tint for "text", JSON otherwise.
func New(level, format, app string) *slog.Logger {
	return NewWriter(os.Stderr, level, format, app)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, level, format, app string) *slog.Logger {
	lvl := ParseLevel(level)

	var h slog.Handler
	if strings.ToLower(format) == "json" {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		h = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})
	}
	return slog.New(h).With("app", app)
}
