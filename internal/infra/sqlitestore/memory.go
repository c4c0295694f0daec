package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/runoshun/relay/internal/domain"
)

// Reserve writes the in-progress records of a unit of work.
func (s *Store) Reserve(ctx context.Context, draft domain.MemoryDraft) error {
	return s.saveMemory(ctx, draft, true)
}

// Finalize overwrites the records of a unit of work with its result.
func (s *Store) Finalize(ctx context.Context, draft domain.MemoryDraft) error {
	return s.saveMemory(ctx, draft, false)
}

func (s *Store) saveMemory(ctx context.Context, draft domain.MemoryDraft, reserved bool) error {
	if err := draft.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range draft.Records(reserved) {
			if prev, err := getMemory(ctx, tx, m.MessageID); err == nil && !prev.CreatedAt.IsZero() {
				m.CreatedAt = prev.CreatedAt
			}
			payload, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("marshal task memory: %w", err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO memories (message_id, primary_id, payload) VALUES (?, ?, ?)
				 ON CONFLICT(message_id) DO UPDATE SET primary_id = excluded.primary_id, payload = excluded.payload`,
				m.MessageID, m.PrimaryID, string(payload))
			if err != nil {
				return fmt.Errorf("save task memory %d: %w", m.MessageID, err)
			}
		}
		return nil
	})
}

// Search returns index entries matching q, newest first.
func (s *Store) Search(ctx context.Context, q domain.MemoryQuery) ([]domain.IndexEntry, error) {
	memories, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.IndexEntry, 0, len(memories))
	for _, m := range memories {
		entries = append(entries, domain.NewIndexEntry(m, filepath.Join("tasks", domain.TaskDirName(m.MessageID))))
	}
	return domain.FilterIndex(entries, q), nil
}

// Get returns the record keyed by messageID.
func (s *Store) Get(ctx context.Context, messageID int64) (*domain.TaskMemory, error) {
	var m *domain.TaskMemory
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = getMemory(ctx, tx, messageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LoadAll returns every record, newest first.
func (s *Store) LoadAll(ctx context.Context) ([]*domain.TaskMemory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT message_id, payload FROM memories ORDER BY message_id DESC`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var memories []*domain.TaskMemory
	for rows.Next() {
		var id int64
		var payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan task memory: %w", err)
		}
		m, err := decodeMemory(payload)
		if err != nil {
			s.skipCorrupted("task memory", id, err)
			continue
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func getMemory(ctx context.Context, tx *sql.Tx, messageID int64) (*domain.TaskMemory, error) {
	var payload string
	err := tx.QueryRowContext(ctx, `SELECT payload FROM memories WHERE message_id = ?`, messageID).Scan(&payload)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrMemoryNotFound, domain.TaskDirName(messageID))
	}
	if err != nil {
		return nil, err
	}
	return decodeMemory(payload)
}

func decodeMemory(payload string) (*domain.TaskMemory, error) {
	var m domain.TaskMemory
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, fmt.Errorf("%w: task memory payload: %v", domain.ErrStoreCorrupted, err)
	}
	return &m, nil
}
