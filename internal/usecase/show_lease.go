package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/relay/internal/domain"
)

// ShowLeaseInput contains the parameters for showing the lease.
type ShowLeaseInput struct {
	StaleAfter time.Duration
}

// ShowLeaseOutput contains the lease state and the queue behind it.
type ShowLeaseOutput struct {
	Interrupts []domain.PendingInterrupt
	Status     domain.LeaseStatus
	Pending    int // Unprocessed inbound messages
}

// ShowLease reports the lease without touching it.
type ShowLease struct {
	store domain.CoordinatorStore
	clock domain.Clock
}

// NewShowLease creates a new ShowLease use case.
func NewShowLease(store domain.CoordinatorStore, clock domain.Clock) *ShowLease {
	return &ShowLease{store: store, clock: clock}
}

// Execute reads the lease, the unprocessed messages and the recorded interrupts.
func (uc *ShowLease) Execute(ctx context.Context, in ShowLeaseInput) (*ShowLeaseOutput, error) {
	lease, err := uc.store.Lease(ctx)
	if err != nil {
		return nil, fmt.Errorf("read lease: %w", err)
	}
	records, err := uc.store.ListUnprocessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}
	interrupts, err := uc.store.ListInterrupts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list interrupts: %w", err)
	}
	return &ShowLeaseOutput{
		Status:     domain.InspectLease(lease, uc.clock.Now(), in.StaleAfter),
		Pending:    len(records),
		Interrupts: interrupts,
	}, nil
}
