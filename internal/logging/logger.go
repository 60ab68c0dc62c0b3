// Package logging configures the process-wide zerolog logger. Console output
// goes to stderr in human-readable form; every session also writes a
// timestamped log file so a misbehaving loop can be diagnosed afterwards.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config configures Setup.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string

	// Dir receives a wakeloop_<timestamp>.log file. Empty disables file logging.
	Dir string

	// Console writes to Out (stderr by default). Disable it while a full
	// screen UI owns the terminal.
	Console bool
	NoColor bool
	Out     io.Writer
}

// DefaultConfig logs info and above to the console only.
func DefaultConfig() Config {
	return Config{Level: "info", Console: true}
}

// ParseLevel maps a level name onto zerolog, defaulting to info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.InfoLevel, fmt.Errorf("logging: unknown level %q", s)
}

// Setup installs the global logger. The returned closer flushes and closes
// the session log file; it is safe to call when no file was opened.
func Setup(cfg Config) (path string, closer func() error, err error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return "", nil, err
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var writers []io.Writer
	if cfg.Console {
		out := cfg.Out
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: "15:04:05.000",
		})
	}

	closer = func() error { return nil }
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return "", nil, fmt.Errorf("logging: create log directory: %w", err)
		}
		path = filepath.Join(cfg.Dir, fmt.Sprintf("wakeloop_%s.log", time.Now().Format("2006-01-02_15-04-05")))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return "", nil, fmt.Errorf("logging: open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f.Close
	}

	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(w).With().Timestamp().Logger()
	if level == zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	log.Logger = logger
	return path, closer, nil
}

// Component returns a child of the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
