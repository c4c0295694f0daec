package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/runoshun/relay/internal/domain"
)

const cursorKey = "last_update_id"

// Append inserts rec unless its key exists.
func (s *Store) Append(ctx context.Context, rec *domain.MessageRecord) (bool, error) {
	if !rec.Kind.IsValid() {
		return false, fmt.Errorf("append message %d: invalid kind %q", rec.ID, rec.Kind)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal message: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (kind, message_id, chat_id, ts, processed, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		string(rec.Kind), rec.ID, rec.ChatID, rec.Timestamp.UnixNano(), boolInt(rec.Processed), string(payload))
	if err != nil {
		return false, wrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListUnprocessed returns unprocessed inbound records in ascending ID order.
func (s *Store) ListUnprocessed(ctx context.Context) ([]*domain.MessageRecord, error) {
	return s.queryMessages(ctx,
		`SELECT message_id, payload, processed FROM messages WHERE kind = ? AND processed = 0 ORDER BY message_id`,
		string(domain.KindInbound))
}

// ListAll returns every record in chronological order.
func (s *Store) ListAll(ctx context.Context) ([]*domain.MessageRecord, error) {
	return s.queryMessages(ctx, `SELECT message_id, payload, processed FROM messages ORDER BY ts, rowid`)
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]*domain.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var records []*domain.MessageRecord
	for rows.Next() {
		var id int64
		var payload string
		var processed int
		if err := rows.Scan(&id, &payload, &processed); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var rec domain.MessageRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			s.skipCorrupted("message", id, err)
			continue
		}
		rec.Processed = processed != 0
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// MarkProcessed flags the inbound records with the given IDs.
func (s *Store) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE messages SET processed = 1 WHERE kind = ? AND message_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, string(domain.KindInbound), id); err != nil {
				return fmt.Errorf("mark message %d: %w", id, err)
			}
		}
		return nil
	})
}

// PurgeExpired removes records the policy allows to drop.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time, policy domain.RetentionPolicy) (int, error) {
	processed, err := s.queryMessages(ctx, `SELECT message_id, payload, processed FROM messages WHERE processed = 1`)
	if err != nil {
		return 0, err
	}

	removed := 0
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range processed {
			if !policy.Expired(rec, now) {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE kind = ? AND message_id = ?`, string(rec.Kind), rec.ID); err != nil {
				return fmt.Errorf("delete message %d: %w", rec.ID, err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Cursor returns the last acknowledged transport update ID.
func (s *Store) Cursor(ctx context.Context) (int64, error) {
	var cursor int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, cursorKey).Scan(&cursor)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapErr(err)
	}
	return cursor, nil
}

// SaveCursor stores the cursor. It never moves backwards.
func (s *Store) SaveCursor(ctx context.Context, cursor int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = MAX(value, excluded.value)`,
		cursorKey, cursor)
	return wrapErr(err)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
