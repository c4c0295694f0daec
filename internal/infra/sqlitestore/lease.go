package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/runoshun/relay/internal/domain"
)

// Acquire inserts the singleton lease row. The CHECK (id = 1) primary key
// lets exactly one INSERT OR IGNORE affect a row.
func (s *Store) Acquire(ctx context.Context, lease domain.Lease) (bool, error) {
	payload, err := json.Marshal(lease)
	if err != nil {
		return false, fmt.Errorf("marshal lease: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO lease (id, payload) VALUES (1, ?)`, string(payload))
	if err != nil {
		return false, wrapErr(err)
	}
	return affectedOne(res)
}

// Heartbeat refreshes the lease. No-op when no lease is held.
func (s *Store) Heartbeat(ctx context.Context, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		lease, err := readLease(ctx, tx)
		if err != nil || lease == nil {
			return err
		}
		lease.LastHeartbeatAt = at.Truncate(time.Second)
		payload, err := json.Marshal(lease)
		if err != nil {
			return fmt.Errorf("marshal lease: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE lease SET payload = ? WHERE id = 1`, string(payload))
		return err
	})
}

// Release deletes the lease row if it still belongs to runID.
func (s *Store) Release(ctx context.Context, runID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lease WHERE id = 1 AND json_extract(payload, '$.run_id') = ?`, runID)
	if err != nil {
		return false, wrapErr(err)
	}
	return affectedOne(res)
}

// Reclaim deletes the lease row only while it still holds the expected lease.
// The DELETE matches the exact payload that was compared, so a lease
// refreshed or replaced in between is kept.
func (s *Store) Reclaim(ctx context.Context, expected domain.Lease) (bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM lease WHERE id = 1`).Scan(&payload)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr(err)
	}
	var current domain.Lease
	if err := json.Unmarshal([]byte(payload), &current); err != nil {
		return false, fmt.Errorf("%w: lease payload: %v", domain.ErrStoreCorrupted, err)
	}
	if !current.Same(&expected) {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM lease WHERE id = 1 AND payload = ?`, payload)
	if err != nil {
		return false, wrapErr(err)
	}
	return affectedOne(res)
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Lease returns the current lease, or nil when free.
func (s *Store) Lease(ctx context.Context) (*domain.Lease, error) {
	var lease *domain.Lease
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		lease, err = readLease(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lease, nil
}

func readLease(ctx context.Context, tx *sql.Tx) (*domain.Lease, error) {
	var payload string
	err := tx.QueryRowContext(ctx, `SELECT payload FROM lease WHERE id = 1`).Scan(&payload)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lease domain.Lease
	if err := json.Unmarshal([]byte(payload), &lease); err != nil {
		return nil, fmt.Errorf("%w: lease payload: %v", domain.ErrStoreCorrupted, err)
	}
	return &lease, nil
}
