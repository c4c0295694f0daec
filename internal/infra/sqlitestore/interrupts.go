package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/runoshun/relay/internal/domain"
)

// AddInterrupts records interrupts whose message ID is not already recorded.
func (s *Store) AddInterrupts(ctx context.Context, interrupts []domain.PendingInterrupt) (int, error) {
	added := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, in := range interrupts {
			payload, err := json.Marshal(in)
			if err != nil {
				return fmt.Errorf("marshal interrupt: %w", err)
			}
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO interrupts (message_id, payload) VALUES (?, ?)`, in.MessageID, string(payload))
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			added += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// ListInterrupts returns recorded interrupts in insertion order.
func (s *Store) ListInterrupts(ctx context.Context) ([]domain.PendingInterrupt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT message_id, payload FROM interrupts ORDER BY rowid`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	list := []domain.PendingInterrupt{}
	for rows.Next() {
		var id int64
		var payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan interrupt: %w", err)
		}
		var in domain.PendingInterrupt
		if err := json.Unmarshal([]byte(payload), &in); err != nil {
			s.skipCorrupted("interrupt", id, err)
			continue
		}
		list = append(list, in)
	}
	return list, rows.Err()
}

// ClearInterrupts removes every recorded interrupt.
func (s *Store) ClearInterrupts(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM interrupts`)
	return wrapErr(err)
}
