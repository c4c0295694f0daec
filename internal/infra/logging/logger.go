// Package logging provides file-based logging for relay.
// Every entry goes to the global log (<data dir>/logs/relay.log); entries
// tied to a task also go to <data dir>/logs/task-<message id>.log.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/runoshun/relay/internal/domain"
)

// Ensure Logger implements domain.Logger interface.
var _ domain.Logger = (*Logger)(nil)

// Options configures a Logger.
type Options struct {
	// Console, when set, receives a copy of every entry (serve runs in the foreground).
	Console io.Writer
	Clock   domain.Clock
	Level   slog.Level
}

// Logger writes formatted entries to the data directory's log files.
// Fields are ordered to minimize memory padding.
type Logger struct {
	console    io.Writer
	clock      domain.Clock
	globalFile *os.File
	dataDir    string
	mu         sync.Mutex
	level      slog.Level
}

// New creates a new Logger that writes under dataDir/logs.
// If dataDir is empty, file output is disabled.
func New(dataDir string, opts Options) *Logger {
	clock := opts.Clock
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Logger{
		console: opts.Console,
		clock:   clock,
		dataDir: dataDir,
		level:   opts.Level,
	}
}

// ParseLevel parses a log level string into slog.Level.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Close closes the global log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.globalFile == nil {
		return nil
	}
	err := l.globalFile.Close()
	l.globalFile = nil
	return err
}

// Info logs an info message.
func (l *Logger) Info(taskID int64, category, msg string) {
	l.log(slog.LevelInfo, taskID, category, msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(taskID int64, category, msg string) {
	l.log(slog.LevelDebug, taskID, category, msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(taskID int64, category, msg string) {
	l.log(slog.LevelWarn, taskID, category, msg)
}

// Error logs an error message.
func (l *Logger) Error(taskID int64, category, msg string) {
	l.log(slog.LevelError, taskID, category, msg)
}

// log writes one entry. A taskID of 0 means the entry is global only.
// Write failures are dropped; logging never fails the caller.
func (l *Logger) log(level slog.Level, taskID int64, category, msg string) {
	if level < l.level {
		return
	}
	entry := FormatEntry(l.clock, level, taskID, category, msg)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.console != nil {
		_, _ = io.WriteString(l.console, entry)
	}
	if l.dataDir == "" {
		return
	}
	if f, err := l.openGlobal(); err == nil {
		_, _ = io.WriteString(f, entry)
	}
	if taskID > 0 {
		_ = appendLine(domain.TaskLogPath(l.dataDir, taskID), entry)
	}
}

// openGlobal returns the global log file, opening it on first use. Caller holds mu.
func (l *Logger) openGlobal() (*os.File, error) {
	if l.globalFile != nil {
		return l.globalFile, nil
	}
	f, err := openLog(domain.GlobalLogPath(l.dataDir))
	if err != nil {
		return nil, err
	}
	l.globalFile = f
	return f, nil
}

// appendLine opens, writes and closes a task log so a long serve loop
// does not accumulate one descriptor per task.
func appendLine(path, entry string) error {
	f, err := openLog(path)
	if err != nil {
		return err
	}
	_, werr := io.WriteString(f, entry)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return werr
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}
	// Log files are append-only and readable by the owner's group
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // Log file readable by owner and group
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// FormatEntry formats one log line.
// Format: [2026-03-01 09:32:51] [INFO] [task-1] [category] message
func FormatEntry(clock domain.Clock, level slog.Level, taskID int64, category, msg string) string {
	scope := "global"
	if taskID > 0 {
		scope = fmt.Sprintf("task-%d", taskID)
	}
	return fmt.Sprintf("[%s] [%s] [%s] [%s] %s\n",
		clock.Now().Format("2006-01-02 15:04:05"),
		levelName(level),
		scope,
		category,
		msg,
	)
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
