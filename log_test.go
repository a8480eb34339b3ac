package vkbackend

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := parseLevel(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseLevel("trace")
	assertMarked(t, err, ErrInvalidValue)
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.log")
	log, closer, err := NewLogger(LogConfig{Level: "warn", Format: "json", File: path})
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("swapchain out of date", slog.Int("width", 640))
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), `"msg":"swapchain out of date"`)
	assert.Contains(t, string(data), `"width":640`)
}

func TestNewLoggerStderr(t *testing.T) {
	log, closer, err := NewLogger(LogConfig{})
	require.NoError(t, err)
	assert.NotNil(t, log)
	assert.NoError(t, closer.Close())
}
