package filestore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/runoshun/relay/internal/domain"
)

// messagesFile is the JSON structure of messages.json.
// Fields are ordered to minimize memory padding.
type messagesFile struct {
	Messages     []*domain.MessageRecord `json:"messages"`
	Schema       int                     `json:"schema"`
	LastUpdateID int64                   `json:"last_update_id"`
}

// readMessages loads messages.json. A corrupted file reads as an empty store.
func (s *Store) readMessages(forWrite bool) (*messagesFile, error) {
	var data messagesFile
	found, corrupted, err := s.readState(s.messagesPath(), &data, forWrite)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNotInitialized
	}
	if corrupted {
		data = messagesFile{Schema: messagesSchema}
	}
	if data.Schema != messagesSchema {
		return nil, fmt.Errorf("%w: messages schema mismatch: %d", domain.ErrStoreCorrupted, data.Schema)
	}
	if data.Messages == nil {
		data.Messages = []*domain.MessageRecord{}
	}
	return &data, nil
}

func (s *Store) writeMessages(data *messagesFile) error {
	return writeJSON(s.messagesPath(), data)
}

// updateMessages runs fn on messages.json under the write lock and saves the result.
func (s *Store) updateMessages(fn func(*messagesFile) error) error {
	return s.withLockWrite(func() error {
		data, err := s.readMessages(true)
		if err != nil {
			return err
		}
		if err := fn(data); err != nil {
			return err
		}
		return s.writeMessages(data)
	})
}

// Append stores rec unless a record with the same key exists.
func (s *Store) Append(_ context.Context, rec *domain.MessageRecord) (bool, error) {
	if !rec.Kind.IsValid() {
		return false, fmt.Errorf("append message %d: invalid kind %q", rec.ID, rec.Kind)
	}
	added := false
	err := s.updateMessages(func(data *messagesFile) error {
		key := rec.Key()
		for _, existing := range data.Messages {
			if existing.Key() == key {
				return nil
			}
		}
		data.Messages = append(data.Messages, rec)
		added = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// ListUnprocessed returns unprocessed inbound records in ascending ID order.
func (s *Store) ListUnprocessed(_ context.Context) ([]*domain.MessageRecord, error) {
	var pending []*domain.MessageRecord
	err := s.withLock(func() error {
		data, err := s.readMessages(false)
		if err != nil {
			return err
		}
		for _, m := range data.Messages {
			if m.IsInbound() && !m.Processed {
				pending = append(pending, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(pending, func(a, b *domain.MessageRecord) int {
		return compareInt64(a.ID, b.ID)
	})
	return pending, nil
}

// ListAll returns every record in chronological order.
func (s *Store) ListAll(_ context.Context) ([]*domain.MessageRecord, error) {
	var all []*domain.MessageRecord
	err := s.withLock(func() error {
		data, err := s.readMessages(false)
		if err != nil {
			return err
		}
		all = data.Messages
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(all, func(a, b *domain.MessageRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return all, nil
}

// MarkProcessed flags the inbound records with the given IDs.
func (s *Store) MarkProcessed(_ context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.updateMessages(func(data *messagesFile) error {
		for _, m := range data.Messages {
			if m.IsInbound() && slices.Contains(ids, m.ID) {
				m.Processed = true
			}
		}
		return nil
	})
}

// PurgeExpired removes records the policy allows to drop.
func (s *Store) PurgeExpired(_ context.Context, now time.Time, policy domain.RetentionPolicy) (int, error) {
	removed := 0
	err := s.updateMessages(func(data *messagesFile) error {
		kept := data.Messages[:0]
		for _, m := range data.Messages {
			if policy.Expired(m, now) {
				removed++
				continue
			}
			kept = append(kept, m)
		}
		data.Messages = kept
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Cursor returns the last acknowledged transport update ID.
func (s *Store) Cursor(_ context.Context) (int64, error) {
	var cursor int64
	err := s.withLock(func() error {
		data, err := s.readMessages(false)
		if err != nil {
			return err
		}
		cursor = data.LastUpdateID
		return nil
	})
	return cursor, err
}

// SaveCursor stores the last acknowledged transport update ID.
// The cursor never moves backwards.
func (s *Store) SaveCursor(_ context.Context, cursor int64) error {
	return s.updateMessages(func(data *messagesFile) error {
		if cursor > data.LastUpdateID {
			data.LastUpdateID = cursor
		}
		return nil
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
