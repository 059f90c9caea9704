package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONByDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "debug"}, &buf)
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	logger.Debug("hello", "session_id", "s1")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "hello", rec["msg"])
	require.Equal(t, "s1", rec["session_id"])
	require.Equal(t, logger, slog.Default())
}

func TestNew_TextFormatUsesTint(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, _, err := New(Config{Format: "text", Level: "warn"}, &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	require.Empty(t, buf.String())
	logger.Warn("kept", "step", 2)
	require.Contains(t, buf.String(), "kept")
	require.Contains(t, buf.String(), "step")
}

func TestNew_FileOutput(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "logs", "chat.log")
	var buf bytes.Buffer
	logger, closer, err := New(Config{Format: "text", File: path}, &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	logger.Info("to file")
	require.Empty(t, buf.String())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "to file")
}

func TestNew_UnknownFormat(t *testing.T) {
	_, _, err := New(Config{Format: "xml"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, parseLevel("warning"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
}
