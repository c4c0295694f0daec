package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/runoshun/relay/internal/domain"
)

// ShowMemoryInput contains the message ID to show.
type ShowMemoryInput struct {
	MessageID int64
}

// ShowMemoryOutput contains the record and, for a reference, its primary.
type ShowMemoryOutput struct {
	Memory  *domain.TaskMemory
	Primary *domain.TaskMemory // nil unless Memory is a reference
}

// ShowMemory displays one task memory record.
type ShowMemory struct {
	store domain.MemoryStore
}

// NewShowMemory creates a new ShowMemory use case.
func NewShowMemory(store domain.MemoryStore) *ShowMemory {
	return &ShowMemory{store: store}
}

// Execute loads the record keyed by MessageID. A reference record also
// loads the primary it points at; a missing primary is not an error.
func (uc *ShowMemory) Execute(ctx context.Context, in ShowMemoryInput) (*ShowMemoryOutput, error) {
	mem, err := uc.store.Get(ctx, in.MessageID)
	if err != nil {
		return nil, fmt.Errorf("memory %d: %w", in.MessageID, err)
	}
	out := &ShowMemoryOutput{Memory: mem}
	if !mem.IsReference() {
		return out, nil
	}
	primary, err := uc.store.Get(ctx, mem.PrimaryID)
	switch {
	case errors.Is(err, domain.ErrMemoryNotFound):
	case err != nil:
		return nil, fmt.Errorf("memory %d: %w", mem.PrimaryID, err)
	default:
		out.Primary = primary
	}
	return out, nil
}
