package common

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LogPath returns the path to the log file used while a TUI owns the terminal.
func LogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".stemdeck", "stemdeck.log")
}

// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// SetupLogging configures the default slog logger. With toFile set, output
// goes to ~/.stemdeck/stemdeck.log instead of stderr so it does not draw over
// the terminal UI. The returned closer releases the log file.
func SetupLogging(level string, toFile bool) (io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if toFile {
		logPath := LogPath()
		if logPath == "" {
			return nil, fmt.Errorf("no home directory for %s", "stemdeck.log")
		}
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		w, closer = f, f
	}

	SetupLogger(w, lvl)
	return closer, nil
}

// SetupLogger installs a text handler on w as the default logger.
func SetupLogger(w io.Writer, level slog.Level) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
