// Package log wraps zerolog with the component/task-id child-logger
// pattern the runtime uses everywhere, plus a secondary writer that
// renders the plain-text background_tasks.log format used for the
// on-disk log file.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger instance, configured by Init.
var Logger zerolog.Logger

// Level represents a log verbosity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration, populated from pkg/config.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer

	// FilePath, if set, is the path to background_tasks.log. Every
	// record is additionally appended there under an exclusive advisory
	// lock, regardless of JSONOutput.
	FilePath string
}

// Init initializes the global logger. Safe to call more than once; the
// last call wins.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var primary io.Writer
	if cfg.JSONOutput {
		primary = output
	} else {
		primary = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	writers := []io.Writer{primary}
	if cfg.FilePath != "" {
		writers = append(writers, NewFileWriter(cfg.FilePath))
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with a subsystem name
// (e.g. "statusstore", "spawner", "pool").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithTaskID returns a child logger tagged with a task id, for use by
// monitor/spawner/worker code once a task exists.
func WithTaskID(taskID string) zerolog.Logger {
	return Logger.With().Str("task_id", taskID).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) { Logger.Fatal().Msg(msg) }
