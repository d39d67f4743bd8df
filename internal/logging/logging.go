// Package logging builds the monitor's slog logger. While the dashboard owns
// the terminal, entries go to the log file only; headless runs also write to
// the console.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/luki/labmonitor/internal/config"
)

// Logger is a slog logger plus the file it writes to.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New opens cfg.File for appending and returns a text logger writing to it
// and to console, when console is non-nil.
func New(cfg config.LogConfig, console io.Writer) (*Logger, error) {
	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}

	var file *os.File
	if cfg.File != "" {
		var err error
		file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, file)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return &Logger{Logger: slog.New(handler), file: file}, nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps a config level name to a slog level; unknown names map to
// info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
