// Package logging provides structured logging using zerolog, including a
// process-wide registry of per-session log sinks: each session gets its own
// file, and a child session's logger writes into its parent's file rather
// than opening a new one.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global, process-wide logger instance.
var Logger zerolog.Logger

// Level is exposed for convenience.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config holds logger configuration.
type Config struct {
	Level      Level
	Output     io.Writer
	Pretty     bool
	TimeFormat string
}

// DefaultConfig returns a default configuration writing to stderr.
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// Init initializes the global logger with the given configuration.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	var out io.Writer = cfg.Output
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: cfg.TimeFormat}
	}

	Logger = zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
}

// ParseLevel parses a log level string (case-insensitive), defaulting to
// InfoLevel for anything unrecognized.
func ParseLevel(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	case "FATAL":
		return FatalLevel
	default:
		return InfoLevel
	}
}

func Debug() *zerolog.Event { return Logger.Debug() }
func Info() *zerolog.Event  { return Logger.Info() }
func Warn() *zerolog.Event  { return Logger.Warn() }
func Error() *zerolog.Event { return Logger.Error() }
func Fatal() *zerolog.Event { return Logger.Fatal() }
func With() zerolog.Context { return Logger.With() }

func init() {
	Init(DefaultConfig())
}

// sinkRegistry is the process-wide registry of per-session log files: one
// file per root session id, with children writing
// into their parent's file handle instead of opening their own. Initialized
// lazily, mutated only through its own mutex, never after a session's
// logger has been handed out except to close it at teardown.
type sinkRegistry struct {
	mu      sync.Mutex
	dir     string
	files   map[string]*os.File // rootSessionID -> open file
	loggers map[string]zerolog.Logger
}

var sinks = &sinkRegistry{
	files:   make(map[string]*os.File),
	loggers: make(map[string]zerolog.Logger),
}

// SetSessionLogDir enables per-session file logging rooted at dir. Safe to
// call once at process start; a no-op dir disables file sinks (loggers fall
// back to the process-wide Logger).
func SetSessionLogDir(dir string) {
	sinks.mu.Lock()
	defer sinks.mu.Unlock()
	sinks.dir = dir
}

// ForSession returns the logger a session (or one of its descendants) should
// use. rootSessionID identifies the top-level ancestor that owns the file;
// every descendant passes the same rootSessionID so they share one sink.
func ForSession(rootSessionID, sessionID string) zerolog.Logger {
	sinks.mu.Lock()
	defer sinks.mu.Unlock()

	if l, ok := sinks.loggers[rootSessionID]; ok {
		return l.With().Str("session_id", sessionID).Logger()
	}

	base := Logger
	if sinks.dir != "" {
		if err := os.MkdirAll(sinks.dir, 0o755); err == nil {
			path := filepath.Join(sinks.dir, fmt.Sprintf("session-%s.log", rootSessionID))
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				sinks.files[rootSessionID] = f
				base = zerolog.New(f).With().Timestamp().Logger()
			}
		}
	}

	sinks.loggers[rootSessionID] = base
	return base.With().Str("session_id", sessionID).Logger()
}

// CloseSession releases the file sink for a root session, if one was opened.
// Safe to call once the session tree has fully terminated.
func CloseSession(rootSessionID string) {
	sinks.mu.Lock()
	defer sinks.mu.Unlock()
	if f, ok := sinks.files[rootSessionID]; ok {
		f.Close()
		delete(sinks.files, rootSessionID)
	}
	delete(sinks.loggers, rootSessionID)
}
