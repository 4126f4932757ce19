// README: Process-wide structured logger built on log/slog.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"dispatch/internal/domainerr"
)

var Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Init replaces the default logger. format is "json" or "text".
func Init(format, level string) *slog.Logger {
	Logger = New(os.Stdout, format, level)
	slog.SetDefault(Logger)
	return Logger
}

func New(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", "dispatch")
}

// Discard is handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// LogErrorWithCode logs err with its domain error code attached.
func LogErrorWithCode(ctx context.Context, l *slog.Logger, err error, msg string, args ...any) {
	args = append(args, "code", domainerr.Code(err), "error", err)
	l.ErrorContext(ctx, msg, args...)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
