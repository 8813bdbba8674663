package logging

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a zerolog logger writing to the console and the log file at
// info level.
func New() zerolog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel is New with the level parsed from a config string. Unknown
// levels fall back to info.
func NewWithLevel(level string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	var logger zerolog.Logger
	logFile, err := openLogFile(Path())
	if err != nil {
		logger = zerolog.New(console).With().Timestamp().Caller().Logger()
		logger.Warn().Err(err).Str("path", Path()).Msg("Log file unavailable, logging to console only")
	} else {
		multi := zerolog.MultiLevelWriter(console, logFile)
		logger = zerolog.New(multi).With().Timestamp().Caller().Logger()
	}

	return logger.Level(ParseLevel(level))
}

// ParseLevel maps a config level name to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

// Path returns the platform-specific log file path
func Path() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Logs"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/state"
		}
	}

	return filepath.Join(base, "spectrum-tray", "spectrum-tray.log")
}
