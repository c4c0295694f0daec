package filestore

import (
	"context"
	"fmt"
	"os"

	"github.com/runoshun/relay/internal/domain"
)

// interruptsFile is the JSON structure of new_instructions.json.
type interruptsFile struct {
	Instructions []domain.PendingInterrupt `json:"instructions"`
}

func (s *Store) readInterrupts(forWrite bool) ([]domain.PendingInterrupt, error) {
	var data interruptsFile
	_, corrupted, err := s.readState(s.interruptsPath(), &data, forWrite)
	if err != nil {
		return nil, err
	}
	if corrupted || data.Instructions == nil {
		return []domain.PendingInterrupt{}, nil
	}
	return data.Instructions, nil
}

// AddInterrupts records interrupts whose message ID is not already recorded.
func (s *Store) AddInterrupts(_ context.Context, interrupts []domain.PendingInterrupt) (int, error) {
	if len(interrupts) == 0 {
		return 0, nil
	}
	added := 0
	err := s.withLockWrite(func() error {
		existing, err := s.readInterrupts(true)
		if err != nil {
			return err
		}
		seen := make(map[int64]struct{}, len(existing))
		for _, in := range existing {
			seen[in.MessageID] = struct{}{}
		}
		for _, in := range interrupts {
			if _, ok := seen[in.MessageID]; ok {
				continue
			}
			seen[in.MessageID] = struct{}{}
			existing = append(existing, in)
			added++
		}
		if added == 0 {
			return nil
		}
		return writeJSON(s.interruptsPath(), interruptsFile{Instructions: existing})
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// ListInterrupts returns recorded interrupts in detection order.
func (s *Store) ListInterrupts(_ context.Context) ([]domain.PendingInterrupt, error) {
	var list []domain.PendingInterrupt
	err := s.withLock(func() error {
		var err error
		list, err = s.readInterrupts(false)
		return err
	})
	return list, err
}

// ClearInterrupts removes new_instructions.json.
func (s *Store) ClearInterrupts(_ context.Context) error {
	return s.withLockWrite(func() error {
		if err := os.Remove(s.interruptsPath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove interrupts file: %w", err)
		}
		return nil
	})
}
