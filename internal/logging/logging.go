package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global logger. format "json" writes one JSON object
// per line; anything else gets the human console writer.
func Init(verbose bool, format string) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)

	log.Logger = NewLogger(output(format, os.Stderr))
}

func output(format string, w io.Writer) io.Writer {
	if format == "json" {
		return w
	}
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		NoColor:    false,
	}
}

// NewLogger creates a new logger with optional writers
func NewLogger(writers ...io.Writer) zerolog.Logger {
	if len(writers) == 0 {
		return log.Logger
	}

	if len(writers) == 1 {
		return zerolog.New(writers[0]).With().Timestamp().Logger()
	}

	multi := zerolog.MultiLevelWriter(writers...)
	return zerolog.New(multi).With().Timestamp().Logger()
}

// WithComponent creates a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// CronLogger adapts zerolog to the cron.Logger interface
type CronLogger struct {
	Logger zerolog.Logger
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
