package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given a file-backed JSON logger
	dir := t.TempDir()
	logPath := filepath.Join(dir, "librarian.log")

	logger, cleanup, err := Setup(Config{
		Level:    "info",
		Format:   "json",
		FilePath: logPath,
	})
	require.NoError(t, err)

	// When logging a structured record
	logger.Info("indexed file", slog.String("path", "/books/moby.txt"), slog.Int("chunks", 4))
	cleanup()

	// Then the file contains the JSON-encoded attributes
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"indexed file"`)
	assert.Contains(t, string(data), `"chunks":4`)
}

func TestSetup_LevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "librarian.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: logPath})
	require.NoError(t, err)

	logger.Debug("invisible")
	logger.Info("also invisible")
	logger.Warn("visible")
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "invisible")
	assert.Contains(t, string(data), "visible")
}

func TestSetup_EmptyPathLogsToStderrOnly(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, logger)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestRotatingWriter_RotatesAtSizeLimit(t *testing.T) {
	// Given a writer with a 1 MB cap
	dir := t.TempDir()
	logPath := filepath.Join(dir, "librarian.log")
	w, err := NewRotatingWriter(logPath, 1, 3)
	require.NoError(t, err)
	defer w.Close()

	// When writing past the cap
	line := []byte(strings.Repeat("x", 1024) + "\n")
	for i := 0; i < 1100; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	// Then a rotated file exists alongside the live one
	_, err = os.Stat(logPath)
	assert.NoError(t, err)
	_, err = os.Stat(logPath + ".1")
	assert.NoError(t, err)
}

func TestRotatingWriter_DropsFilesPastLimit(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "librarian.log")

	// Seed rotated files at and beyond the retention limit
	require.NoError(t, os.WriteFile(logPath+".1", []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(logPath+".2", []byte("two"), 0o644))

	w, err := NewRotatingWriter(logPath, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	line := []byte(strings.Repeat("y", 1024) + "\n")
	for i := 0; i < 1100; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	// .2 held the oldest content and was dropped during rotation
	_, err = os.Stat(logPath + ".3")
	assert.True(t, os.IsNotExist(err))
}
