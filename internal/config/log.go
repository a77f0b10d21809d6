package config

import (
	"log/slog"
	"strings"
)

type LogConfig struct {
	Level  string
	Format string
}

func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
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

// JSON reports whether logs should be emitted as JSON; anything else is the
// console format.
func (l LogConfig) JSON() bool { return strings.EqualFold(l.Format, "json") }

func loadLog() LogConfig {
	return LogConfig{
		Level:  getenv("LOG_LEVEL", "info"),
		Format: getenv("LOG_FORMAT", "console"),
	}
}
