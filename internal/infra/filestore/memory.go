package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/runoshun/relay/internal/domain"
	"gopkg.in/yaml.v3"
)

// indexFile is the JSON structure of tasks/index.json.
type indexFile struct {
	LastUpdated time.Time           `json:"last_updated"`
	Tasks       []domain.IndexEntry `json:"tasks"`
}

// Reserve writes the in-progress records of a unit of work.
func (s *Store) Reserve(_ context.Context, draft domain.MemoryDraft) error {
	return s.saveMemory(draft, true)
}

// Finalize overwrites the records of a unit of work with its result.
func (s *Store) Finalize(_ context.Context, draft domain.MemoryDraft) error {
	return s.saveMemory(draft, false)
}

func (s *Store) saveMemory(draft domain.MemoryDraft, reserved bool) error {
	if err := draft.Validate(); err != nil {
		return err
	}
	records := draft.Records(reserved)

	return s.withLockWrite(func() error {
		index, err := s.readIndex(true)
		if err != nil {
			return err
		}

		for _, m := range records {
			if prev, err := s.readMemory(m.MessageID); err == nil && !prev.CreatedAt.IsZero() {
				m.CreatedAt = prev.CreatedAt
			}
			if err := s.writeMemory(m); err != nil {
				return err
			}
			entry := domain.NewIndexEntry(m, filepath.Join("tasks", domain.TaskDirName(m.MessageID)))
			index.Tasks = upsertEntry(index.Tasks, entry)
		}

		domain.SortIndex(index.Tasks)
		index.LastUpdated = draft.At
		return writeJSON(domain.IndexPath(s.dataDir), index)
	})
}

// Search returns index entries matching q, newest first.
func (s *Store) Search(_ context.Context, q domain.MemoryQuery) ([]domain.IndexEntry, error) {
	var entries []domain.IndexEntry
	err := s.withLock(func() error {
		index, err := s.readIndex(false)
		if err != nil {
			return err
		}
		entries = index.Tasks
		return nil
	})
	if err != nil {
		return nil, err
	}
	domain.SortIndex(entries)
	return domain.FilterIndex(entries, q), nil
}

// Get returns the record stored in tasks/msg_<messageID>/.
func (s *Store) Get(_ context.Context, messageID int64) (*domain.TaskMemory, error) {
	var m *domain.TaskMemory
	err := s.withLock(func() error {
		var err error
		m, err = s.readMemory(messageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LoadAll returns every record found under tasks/, newest first.
// Task directories without a record (a run that never reserved) are skipped.
func (s *Store) LoadAll(_ context.Context) ([]*domain.TaskMemory, error) {
	var memories []*domain.TaskMemory
	err := s.withLock(func() error {
		entries, err := os.ReadDir(domain.TasksDir(s.dataDir))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("read tasks dir: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			id, ok := domain.ParseTaskDirName(e.Name())
			if !ok {
				continue
			}
			m, err := s.readMemory(id)
			if errors.Is(err, domain.ErrMemoryNotFound) {
				continue
			}
			if errors.Is(err, domain.ErrStoreCorrupted) {
				s.logger.Error(id, "store", err.Error())
				continue
			}
			if err != nil {
				return err
			}
			memories = append(memories, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	domain.SortMemories(memories)
	return memories, nil
}

func (s *Store) readIndex(forWrite bool) (*indexFile, error) {
	var index indexFile
	_, corrupted, err := s.readState(domain.IndexPath(s.dataDir), &index, forWrite)
	if err != nil {
		return nil, err
	}
	if corrupted {
		index = indexFile{}
	}
	if index.Tasks == nil {
		index.Tasks = []domain.IndexEntry{}
	}
	return &index, nil
}

func (s *Store) readMemory(messageID int64) (*domain.TaskMemory, error) {
	content, err := os.ReadFile(s.memoryPath(messageID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMemoryNotFound, domain.TaskDirName(messageID))
		}
		return nil, fmt.Errorf("read task memory: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	var m domain.TaskMemory
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrStoreCorrupted, s.memoryPath(messageID), err)
	}
	return &m, nil
}

func (s *Store) writeMemory(m *domain.TaskMemory) error {
	dir := domain.TaskDir(s.dataDir, m.MessageID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create task dir: %w", err)
	}
	content, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal task memory: %w", err)
	}
	return writeAtomic(s.memoryPath(m.MessageID), content, 0o600)
}

func upsertEntry(entries []domain.IndexEntry, entry domain.IndexEntry) []domain.IndexEntry {
	for i := range entries {
		if entries[i].MessageID == entry.MessageID {
			entries[i] = entry
			return entries
		}
	}
	return append(entries, entry)
}
