package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/usecase/shared"
)

// ReclaimLeaseInput contains the parameters for reclaiming the lease.
type ReclaimLeaseInput struct {
	StaleAfter time.Duration
	Force      bool // Reclaim a lease that still looks alive
}

// ReclaimLeaseOutput contains the result of reclaiming the lease.
type ReclaimLeaseOutput struct {
	Status   domain.LeaseStatus // State before the reclaim
	Notified int
}

// ReclaimLease releases an abandoned lease by hand.
type ReclaimLease struct {
	store  domain.CoordinatorStore
	sender domain.Sender
	clock  domain.Clock
	logger domain.Logger
}

// NewReclaimLease creates a new ReclaimLease use case. sender may be nil.
func NewReclaimLease(store domain.CoordinatorStore, sender domain.Sender, clock domain.Clock, logger domain.Logger) *ReclaimLease {
	return &ReclaimLease{
		store:  store,
		sender: sender,
		clock:  clock,
		logger: logger,
	}
}

// Execute reclaims a stale lease, or any held lease when forced.
// Returns domain.ErrLeaseNotHeld when free and domain.ErrLeaseNotStale
// when the lease is alive and Force is unset.
func (uc *ReclaimLease) Execute(ctx context.Context, in ReclaimLeaseInput) (*ReclaimLeaseOutput, error) {
	lease, err := uc.store.Lease(ctx)
	if err != nil {
		return nil, fmt.Errorf("read lease: %w", err)
	}
	status := domain.InspectLease(lease, uc.clock.Now(), in.StaleAfter)
	switch status.State {
	case domain.LeaseFree:
		return nil, domain.ErrLeaseNotHeld
	case domain.LeaseHeld:
		if !in.Force {
			return nil, fmt.Errorf("%w: last heartbeat %s ago", domain.ErrLeaseNotStale, status.Idle.Truncate(time.Second))
		}
	}

	notified, err := shared.ReclaimLease(ctx, uc.store, uc.sender, uc.logger, status)
	if err != nil {
		return nil, err
	}
	return &ReclaimLeaseOutput{Status: status, Notified: notified}, nil
}
