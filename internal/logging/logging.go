// Package logging wraps log/slog with the level set this codebase's
// CLI tooling expects: the four standard levels plus a Trace level
// below Debug, for the matcher's per-candidate scoring trace.
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Level aliases slog.Level so callers never need to import log/slog
// directly just to pick a verbosity.
type Level = slog.Level

const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// ParseLevel maps the --loglevel flag's string values onto Level,
// defaulting to Info on an unrecognized value.
func ParseLevel(s string) Level {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// New builds a JSON-handler slog.Logger at the given level, writing to
// w. levelName renders LevelTrace as "TRACE" since slog's default
// renderer only knows the four standard names.
func New(w *os.File, level Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelName(lvl))
				}
			}
			return a
		},
	})
	return slog.New(handler)
}

func levelName(l Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO"
	case l <= LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// Trace logs at LevelTrace, the level below Debug for output too verbose
// for Debug on a busy stub server. The dispatcher does not log its
// per-candidate mismatch traces through it.
func Trace(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Log(ctx, LevelTrace, msg, args...)
}
