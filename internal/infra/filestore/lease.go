package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/runoshun/relay/internal/domain"
)

// unreadableSummary marks a lease file that exists but cannot be parsed.
const unreadableSummary = "(unreadable lease file)"

// Acquire creates working.json with O_EXCL. The flock serializes callers in
// this store; O_EXCL keeps the create atomic for anything outside it.
func (s *Store) Acquire(_ context.Context, lease domain.Lease) (bool, error) {
	content, err := json.MarshalIndent(lease, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal lease: %w", err)
	}

	acquired := false
	err = s.withLockWrite(func() error {
		f, err := os.OpenFile(s.leasePath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				return nil
			}
			return fmt.Errorf("create lease file: %w", err)
		}
		if _, err := f.Write(content); err != nil {
			_ = f.Close()
			_ = os.Remove(s.leasePath())
			return fmt.Errorf("write lease file: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(s.leasePath())
			return fmt.Errorf("close lease file: %w", err)
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Heartbeat refreshes the lease's last heartbeat. No-op when no lease is held.
// An unreadable lease file only has its mtime touched.
func (s *Store) Heartbeat(_ context.Context, at time.Time) error {
	return s.withLockWrite(func() error {
		var lease domain.Lease
		found, err := readJSON(s.leasePath(), &lease)
		if !found && err == nil {
			return nil
		}
		if err != nil {
			if errors.Is(err, domain.ErrStoreCorrupted) {
				return os.Chtimes(s.leasePath(), at, at)
			}
			return err
		}
		lease.LastHeartbeatAt = at.Truncate(time.Second)
		return writeJSON(s.leasePath(), lease)
	})
}

// Release deletes the lease file if it still belongs to runID.
// Missing is not an error. An unreadable file is left to age out.
func (s *Store) Release(_ context.Context, runID string) (bool, error) {
	released := false
	err := s.withLockWrite(func() error {
		lease, err := s.readLease()
		if err != nil || lease == nil || lease.RunID != runID || runID == "" {
			return err
		}
		if err := s.removeLease(); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

// Reclaim re-reads working.json under the exclusive lock and removes it only
// while it is still the expected lease.
func (s *Store) Reclaim(_ context.Context, expected domain.Lease) (bool, error) {
	reclaimed := false
	err := s.withLockWrite(func() error {
		lease, err := s.readLease()
		if err != nil || !lease.Same(&expected) {
			return err
		}
		if err := s.removeLease(); err != nil {
			return err
		}
		reclaimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return reclaimed, nil
}

// Lease returns the current lease, or nil when free.
func (s *Store) Lease(_ context.Context) (*domain.Lease, error) {
	var result *domain.Lease
	err := s.withLock(func() error {
		var err error
		result, err = s.readLease()
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// readLease reads working.json; the caller holds the lock.
// A lease file that cannot be parsed is reported as held since its last
// modification so that it ages out like any other lease.
func (s *Store) readLease() (*domain.Lease, error) {
	var lease domain.Lease
	found, err := readJSON(s.leasePath(), &lease)
	if err != nil {
		if !errors.Is(err, domain.ErrStoreCorrupted) {
			return nil, err
		}
		info, statErr := os.Stat(s.leasePath())
		if statErr != nil {
			return nil, statErr
		}
		return &domain.Lease{
			Summary:         unreadableSummary,
			AcquiredAt:      info.ModTime(),
			LastHeartbeatAt: info.ModTime(),
		}, nil
	}
	if !found {
		return nil, nil
	}
	return &lease, nil
}

func (s *Store) removeLease() error {
	if err := os.Remove(s.leasePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lease file: %w", err)
	}
	return nil
}
