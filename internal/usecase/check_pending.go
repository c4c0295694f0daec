package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/usecase/shared"
)

// CheckStatus is the answer of the quick check, used as the process exit code.
type CheckStatus int

// Check statuses.
const (
	CheckIdle    CheckStatus = 0 // Nothing to do
	CheckPending CheckStatus = 1 // Work must be dispatched (including a stale lease to reclaim)
	CheckBusy    CheckStatus = 2 // Another unit of work holds the lease
)

// CheckPendingInput contains the parameters for the quick check.
type CheckPendingInput struct {
	StaleAfter time.Duration
}

// CheckPendingOutput contains the result of the quick check.
type CheckPendingOutput struct {
	Lease   domain.LeaseStatus
	Pending int
	Status  CheckStatus
}

// CheckPendingUseCase decides whether `relay run` has anything to do.
// It never takes or reclaims the lease.
type CheckPendingUseCase struct {
	store     domain.CoordinatorStore
	transport domain.Transport
	clock     domain.Clock
	logger    domain.Logger
}

// NewCheckPending creates a new CheckPending use case. transport may be nil.
func NewCheckPending(store domain.CoordinatorStore, transport domain.Transport, clock domain.Clock, logger domain.Logger) *CheckPendingUseCase {
	return &CheckPendingUseCase{
		store:     store,
		transport: transport,
		clock:     clock,
		logger:    logger,
	}
}

// Execute inspects the lease and, when free, pulls and counts unprocessed messages.
func (uc *CheckPendingUseCase) Execute(ctx context.Context, in CheckPendingInput) (*CheckPendingOutput, error) {
	lease, err := uc.store.Lease(ctx)
	if err != nil {
		return nil, fmt.Errorf("read lease: %w", err)
	}
	out := &CheckPendingOutput{Lease: domain.InspectLease(lease, uc.clock.Now(), in.StaleAfter)}

	switch out.Lease.State {
	case domain.LeaseHeld:
		out.Status = CheckBusy
		return out, nil
	case domain.LeaseStale:
		out.Status = CheckPending
		return out, nil
	}

	shared.IngestLogged(ctx, uc.transport, uc.store, uc.logger)

	records, err := uc.store.ListUnprocessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}
	out.Pending = len(records)
	if out.Pending > 0 {
		out.Status = CheckPending
	}
	return out, nil
}
