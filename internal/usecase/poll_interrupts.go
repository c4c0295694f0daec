package usecase

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/usecase/shared"
)

// PollInterruptsInput contains the parameters for polling interrupts.
type PollInterruptsInput struct {
	StaleAfter time.Duration
	ListOnly   bool // Only list what is recorded; no pull
}

// PollInterruptsOutput contains the result of polling interrupts.
type PollInterruptsOutput struct {
	Added   []domain.PendingInterrupt // Recorded by this poll
	Pending []domain.PendingInterrupt // Everything recorded so far
}

// PollInterrupts records messages that arrived while a task runs, without
// starting a second task.
type PollInterrupts struct {
	store     domain.CoordinatorStore
	transport domain.Transport
	clock     domain.Clock
	logger    domain.Logger
}

// NewPollInterrupts creates a new PollInterrupts use case. transport may be nil.
func NewPollInterrupts(store domain.CoordinatorStore, transport domain.Transport, clock domain.Clock, logger domain.Logger) *PollInterrupts {
	return &PollInterrupts{
		store:     store,
		transport: transport,
		clock:     clock,
		logger:    logger,
	}
}

// Execute pulls new messages and records the unprocessed ones the running
// task does not own. Returns domain.ErrLeaseNotHeld unless the lease is held
// and alive.
func (uc *PollInterrupts) Execute(ctx context.Context, in PollInterruptsInput) (*PollInterruptsOutput, error) {
	if in.ListOnly {
		pending, err := uc.store.ListInterrupts(ctx)
		if err != nil {
			return nil, fmt.Errorf("list interrupts: %w", err)
		}
		return &PollInterruptsOutput{Pending: pending}, nil
	}

	lease, err := uc.store.Lease(ctx)
	if err != nil {
		return nil, fmt.Errorf("read lease: %w", err)
	}
	status := domain.InspectLease(lease, uc.clock.Now(), in.StaleAfter)
	if status.State != domain.LeaseHeld {
		return nil, domain.ErrLeaseNotHeld
	}

	shared.IngestLogged(ctx, uc.transport, uc.store, uc.logger)

	records, err := uc.store.ListUnprocessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}
	recorded, err := uc.store.ListInterrupts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list interrupts: %w", err)
	}
	known := domain.InterruptIDs(recorded)

	now := uc.clock.Now()
	var fresh []domain.PendingInterrupt
	for _, rec := range records {
		if lease.Owns(rec.ID) || slices.Contains(known, rec.ID) {
			continue
		}
		fresh = append(fresh, domain.NewPendingInterrupt(rec, now))
	}

	out := &PollInterruptsOutput{Pending: recorded}
	if len(fresh) == 0 {
		return out, nil
	}
	if _, err := uc.store.AddInterrupts(ctx, fresh); err != nil {
		return nil, fmt.Errorf("record interrupts: %w", err)
	}
	var primary int64
	if len(lease.MessageIDs) > 0 {
		primary = lease.MessageIDs[0]
	}
	for _, p := range fresh {
		uc.logger.Info(primary, "interrupt", fmt.Sprintf("message %d arrived during the task", p.MessageID))
	}
	out.Added = fresh
	out.Pending = append(out.Pending, fresh...)
	return out, nil
}
