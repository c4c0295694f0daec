// Package filestore provides a file-based implementation of CoordinatorStore.
//
// Layout under the data directory:
//
//	messages.json          message records and the transport cursor
//	working.json           the lease, present only while held
//	new_instructions.json  pending interrupts
//	tasks/index.json       memory index
//	tasks/msg_<id>/        task working directory and task_info.yaml
//
// Every read-modify-write runs under an flock on .lock so concurrent
// processes (the serve loop, a worker calling `relay heartbeat`) stay consistent.
// A file that cannot be parsed reads as empty; the next write moves it aside
// to <name>.corrupt-<unix> before replacing it.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/runoshun/relay/internal/domain"
)

const messagesSchema = 1

// Store implements domain.CoordinatorStore using files under the data directory.
type Store struct {
	logger   domain.Logger
	dataDir  string
	lockPath string
}

// New creates a new Store rooted at dataDir. A nil logger discards.
// Nothing is created until Initialize is called.
func New(dataDir string, logger domain.Logger) *Store {
	if logger == nil {
		logger = domain.NopLogger{}
	}
	return &Store{
		logger:   logger,
		dataDir:  dataDir,
		lockPath: filepath.Join(dataDir, ".lock"),
	}
}

// Ensure Store implements CoordinatorStore.
var _ domain.CoordinatorStore = (*Store)(nil)

// IsInitialized checks if the messages file exists.
func (s *Store) IsInitialized() bool {
	_, err := os.Stat(s.messagesPath())
	return err == nil
}

// Initialize creates the data directory layout if it doesn't exist.
func (s *Store) Initialize(_ context.Context) error {
	return s.withLockWrite(func() error {
		if err := os.MkdirAll(domain.TasksDir(s.dataDir), 0o750); err != nil {
			return fmt.Errorf("create tasks dir: %w", err)
		}
		if _, err := os.Stat(s.messagesPath()); err == nil {
			return nil
		}
		return s.writeMessages(&messagesFile{Schema: messagesSchema, Messages: []*domain.MessageRecord{}})
	})
}

func (s *Store) messagesPath() string {
	return filepath.Join(s.dataDir, domain.MessagesFileName)
}

func (s *Store) leasePath() string {
	return filepath.Join(s.dataDir, domain.LeaseFileName)
}

func (s *Store) interruptsPath() string {
	return filepath.Join(s.dataDir, domain.InterruptFileName)
}

func (s *Store) memoryPath(messageID int64) string {
	return filepath.Join(domain.TaskDir(s.dataDir, messageID), domain.MemoryFileName)
}

func (s *Store) withLock(fn func() error) error {
	lock, err := s.acquireLock(syscall.LOCK_SH)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)
	return fn()
}

func (s *Store) withLockWrite(fn func() error) error {
	lock, err := s.acquireLock(syscall.LOCK_EX)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)
	return fn()
}

func (s *Store) acquireLock(lockType int) (*os.File, error) {
	if err := os.MkdirAll(s.dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lock, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(lock.Fd()), lockType); err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	return lock, nil
}

func (s *Store) releaseLock(lock *os.File) {
	_ = syscall.Flock(int(lock.Fd()), syscall.LOCK_UN)
	_ = lock.Close()
}

// readJSON decodes path into v. Returns false when the file does not exist.
func readJSON(path string, v any) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := decodeJSONStrict(content, v); err != nil {
		return true, fmt.Errorf("%w: parse %s: %v", domain.ErrStoreCorrupted, filepath.Base(path), err)
	}
	return true, nil
}

// readState is readJSON that survives corruption. A corrupted file is logged
// and reported through corrupted; when forWrite is set it is moved aside first.
func (s *Store) readState(path string, v any, forWrite bool) (found, corrupted bool, err error) {
	found, err = readJSON(path, v)
	if err == nil || !errors.Is(err, domain.ErrStoreCorrupted) {
		return found, false, err
	}
	s.logger.Error(0, "store", err.Error())
	if forWrite {
		backup := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if err := os.Rename(path, backup); err != nil {
			return true, true, fmt.Errorf("move corrupted %s aside: %w", filepath.Base(path), err)
		}
		s.logger.Warn(0, "store", fmt.Sprintf("moved corrupted %s to %s", filepath.Base(path), backup))
	}
	return true, true, nil
}

func writeJSON(path string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return writeAtomic(path, content, 0o600)
}

func decodeJSONStrict(content []byte, v any) error {
	dec := json.NewDecoder(strings.NewReader(string(content)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected trailing content")
	}
	return nil
}

func writeAtomic(path string, content []byte, perm os.FileMode) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, perm); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
