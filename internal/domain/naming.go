package domain

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// File names under the data directory.
const (
	ConfigFileName    = "config.toml"
	MessagesFileName  = "messages.json"
	LeaseFileName     = "working.json"
	InterruptFileName = "new_instructions.json"
	IndexFileName     = "index.json"
	MemoryFileName    = "task_info.yaml"
	PriorMemoryName   = "prior_memory.md"
	InterruptNoteName = "new_instructions.md"
	SQLiteFileName    = "relay.db"
	taskDirPrefix     = "msg_"
)

// DefaultDataDir returns $RELAY_DATA_DIR, or .relay under the working directory.
func DefaultDataDir() string {
	if dir := os.Getenv("RELAY_DATA_DIR"); dir != "" {
		return dir
	}
	return ".relay"
}

// GlobalConfigDir returns the global config directory under configHome.
func GlobalConfigDir(configHome string) string {
	return filepath.Join(configHome, "relay")
}

// TaskDirName returns the directory name of a task's files.
// Format: msg_<id>
func TaskDirName(messageID int64) string {
	return fmt.Sprintf("%s%d", taskDirPrefix, messageID)
}

// ParseTaskDirName extracts the message ID from a task directory name.
func ParseTaskDirName(name string) (int64, bool) {
	if !strings.HasPrefix(name, taskDirPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(name, taskDirPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// TasksDir returns the directory holding every task directory.
func TasksDir(dataDir string) string {
	return filepath.Join(dataDir, "tasks")
}

// TaskDir returns the working directory of the task keyed by messageID.
func TaskDir(dataDir string, messageID int64) string {
	return filepath.Join(TasksDir(dataDir), TaskDirName(messageID))
}

// IndexPath returns the path to the memory index.
func IndexPath(dataDir string) string {
	return filepath.Join(TasksDir(dataDir), IndexFileName)
}

// TaskLogPath returns the path to the task log file.
func TaskLogPath(dataDir string, taskID int64) string {
	return filepath.Join(dataDir, "logs", fmt.Sprintf("task-%d.log", taskID))
}

// GlobalLogPath returns the path to the global log file.
func GlobalLogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs", "relay.log")
}
