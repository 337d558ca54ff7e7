package config

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger builds the process logger from LogLevel and LogFormat ("json" or
// "console"). Unknown levels fall back to warn.
func (c Config) Logger(w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.LogLevel)))
	if err != nil || c.LogLevel == "" {
		lvl = zerolog.WarnLevel
	}
	if strings.EqualFold(c.LogFormat, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
