package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/rs/zerolog"
	slogzerolog "github.com/samber/slog-zerolog"

	"github.com/0xPexy/aletta-backend/internal/config"
)

func New(cfg config.LogConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

func NewWithWriter(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var zerologLogger zerolog.Logger
	if cfg.JSON() {
		zerologLogger = zerolog.New(w).With().Timestamp().Logger()
	} else {
		zerologLogger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return slog.New(slogzerolog.Option{Level: cfg.SlogLevel(), Logger: &zerologLogger}.NewZerologHandler())
}

// Discard is a logger for tests and for callers that do not log.
func Discard() *slog.Logger {
	return NewWithWriter(config.LogConfig{Level: "error", Format: "json"}, io.Discard)
}
