package app

import (
	"io"
	"log/slog"
)

// newLogger builds the App's slog.Logger. Each App owns its own instance;
// nothing here touches the process-global default, so tests can run several
// isolated apps side by side.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "text" {
		return slog.New(slog.NewTextHandler(outW, opts))
	}
	// JSON is the default output format.
	return slog.New(slog.NewJSONHandler(outW, opts))
}
