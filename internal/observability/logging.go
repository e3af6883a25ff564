package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// NewLogger creates a component-tagged logger. Level comes from
// DEX_LOG_LEVEL (default info); DEX_LOG_FORMAT=console switches from
// JSON to human-readable output for local development.
func NewLogger(component string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("DEX_LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return newLogger(component, level)
}

func newLogger(component string, level zerolog.Level) zerolog.Logger {
	var out io.Writer = os.Stdout
	if os.Getenv("DEX_LOG_FORMAT") == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.StampMilli}
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
