package logging

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Level can be adjusted at runtime, LOG_LEVEL sets the initial value.
var Level = new(slog.LevelVar)

// Logger is built during variable initialization so the shortcut helpers
// below bind to a live logger.
var Logger = newLogger()

func newLogger() *slog.Logger {
	Level.Set(parseLevel(os.Getenv("LOG_LEVEL")))

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: Level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: Level})
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Shortcut helpers
var (
	Info  = Logger.Info
	Error = Logger.Error
	Warn  = Logger.Warn
	Debug = Logger.Debug
)

// Fatal logs at error level and exits the process.
func Fatal(msg string, args ...any) {
	Logger.Error(msg, args...)
	os.Exit(1)
}

// WrapSlog returns a *log.Logger writing through slog at debug level,
// for libraries that only accept the standard logger.
func WrapSlog(args ...any) *log.Logger {
	return log.New(&slogWriter{logger: Logger.With(args...)}, "", 0)
}

type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(p []byte) (int, error) {
	w.logger.Log(context.Background(), slog.LevelDebug, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
