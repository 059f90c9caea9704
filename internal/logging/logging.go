// Package logging builds the process logger.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config selects the log handler. File, when set, sends logs to a rotated
// file instead of the writer passed to New.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json (default) or text
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a logger and installs it as the slog default. The returned
// closer releases the log file and is a no-op when logging to w.
func New(cfg Config, w io.Writer) (*slog.Logger, io.Closer, error) {
	if w == nil {
		w = os.Stdout
	}
	var closer io.Closer = nopCloser{}
	noColor := false
	if path := strings.TrimSpace(cfg.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: create log dir: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    positive(cfg.MaxSizeMB, 10),
			MaxBackups: positive(cfg.MaxBackups, 3),
			MaxAge:     positive(cfg.MaxAgeDays, 7),
		}
		w, closer = file, file
		noColor = true
	}

	level := parseLevel(cfg.Level)
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case FormatText:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
			AddSource:  true,
			NoColor:    noColor,
		})
	default:
		_ = closer.Close()
		return nil, nil, errors.New("logging: unknown format " + cfg.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func positive(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
