// Package observability provides the logger and metrics wiring shared by
// the engine and the CLI.
package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the application logger. Level is read from
// CANVASS_LOG_LEVEL (default info); CANVASS_LOG_FORMAT=json switches from
// the console writer to plain JSON lines.
func NewLogger(app string) zerolog.Logger {
	var out io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	if strings.EqualFold(os.Getenv("CANVASS_LOG_FORMAT"), "json") {
		out = os.Stdout
	}
	level := zerolog.InfoLevel
	if raw := os.Getenv("CANVASS_LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
}
