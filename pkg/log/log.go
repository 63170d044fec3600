package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger

	// sessionPath is the log file for the current run, if one was opened
	sessionPath string
	sessionFile *os.File
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer

	// SessionDir, when set, makes Init open a timestamped log file under
	// this directory and tee every log line into it.
	SessionDir string
}

// Init initializes the global logger
func Init(cfg Config) error {
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

	var console io.Writer
	if cfg.JSONOutput {
		console = output
	} else {
		console = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	sink := console
	if cfg.SessionDir != "" {
		if err := os.MkdirAll(cfg.SessionDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		name := fmt.Sprintf("hutch-%s.log", time.Now().Format("20060102-150405"))
		f, err := os.OpenFile(filepath.Join(cfg.SessionDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open session log: %w", err)
		}
		sessionFile = f
		sessionPath = f.Name()
		sink = zerolog.MultiLevelWriter(console, f)
	}

	Logger = zerolog.New(sink).With().Timestamp().Logger()
	return nil
}

// SessionFile returns the path of the current session log file, or an empty
// string when no session file was opened.
func SessionFile() string {
	return sessionPath
}

// Close flushes and closes the session log file, if one is open.
func Close() {
	if sessionFile != nil {
		sessionFile.Close()
		sessionFile = nil
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithInstance creates a child logger with instance field
func WithInstance(instanceID string) zerolog.Logger {
	return Logger.With().Str("instance", instanceID).Logger()
}

// WithSession creates a child logger with session_id field
func WithSession(sessionID string) zerolog.Logger {
	return Logger.With().Str("session_id", sessionID).Logger()
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
