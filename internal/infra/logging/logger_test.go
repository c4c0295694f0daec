package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestLogger_TaskAndGlobal(t *testing.T) {
	dataDir := t.TempDir()
	clock := &testutil.MockClock{NowTime: time.Date(2026, 3, 1, 9, 32, 51, 0, time.UTC)}
	logger := New(dataDir, Options{Level: slog.LevelInfo, Clock: clock})
	defer func() { _ = logger.Close() }()

	logger.Info(1772355600, "run", "task started")
	logger.Info(0, "serve", "cycle done")

	global := readLog(t, domain.GlobalLogPath(dataDir))
	assert.Equal(t,
		"[2026-03-01 09:32:51] [INFO] [task-1772355600] [run] task started\n"+
			"[2026-03-01 09:32:51] [INFO] [global] [serve] cycle done\n",
		global)

	task := readLog(t, domain.TaskLogPath(dataDir, 1772355600))
	assert.Contains(t, task, "task started")
	assert.NotContains(t, task, "cycle done")

	_, err := os.Stat(domain.TaskLogPath(dataDir, 0))
	assert.True(t, os.IsNotExist(err))
}

func TestLogger_LevelFiltering(t *testing.T) {
	dataDir := t.TempDir()
	logger := New(dataDir, Options{Level: slog.LevelWarn})
	defer func() { _ = logger.Close() }()

	logger.Debug(1, "task", "debug message")
	logger.Info(1, "task", "info message")
	logger.Warn(1, "task", "warn message")
	logger.Error(1, "task", "error message")

	content := readLog(t, domain.GlobalLogPath(dataDir))
	assert.NotContains(t, content, "debug message")
	assert.NotContains(t, content, "info message")
	assert.Contains(t, content, "[WARN]")
	assert.Contains(t, content, "[ERROR]")
}

func TestLogger_ConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	logger := New("", Options{Level: slog.LevelDebug, Console: &console})
	defer func() { _ = logger.Close() }()

	logger.Debug(3, "ingest", "pulled 0 messages")

	assert.Contains(t, console.String(), "[DEBUG] [task-3] [ingest] pulled 0 messages")
}

func TestLogger_MultipleTaskFiles(t *testing.T) {
	dataDir := t.TempDir()
	logger := New(dataDir, Options{Level: slog.LevelInfo})
	defer func() { _ = logger.Close() }()

	logger.Info(1, "task", "message for task 1")
	logger.Info(2, "task", "message for task 2")
	logger.Info(1, "task", "another message for task 1")

	task1 := readLog(t, domain.TaskLogPath(dataDir, 1))
	assert.Equal(t, 2, strings.Count(task1, "\n"))
	assert.NotContains(t, task1, "message for task 2")

	task2 := readLog(t, domain.TaskLogPath(dataDir, 2))
	assert.Contains(t, task2, "message for task 2")
}

func TestLogger_CloseAndReopen(t *testing.T) {
	dataDir := t.TempDir()
	logger := New(dataDir, Options{Level: slog.LevelInfo})

	logger.Info(0, "system", "first")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	logger.Info(0, "system", "second")
	require.NoError(t, logger.Close())

	content := readLog(t, domain.GlobalLogPath(dataDir))
	assert.Contains(t, content, "first")
	assert.Contains(t, content, "second")
	assert.DirExists(t, filepath.Join(dataDir, "logs"))
}
