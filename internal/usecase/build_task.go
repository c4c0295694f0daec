package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/usecase/shared"
)

// BuildTaskInput contains the parameters for building a task.
type BuildTaskInput struct {
	Retention  domain.RetentionPolicy
	StaleAfter time.Duration
}

// BuildTaskOutput contains the result of building a task.
// Task is nil when the lease is held or nothing is pending.
type BuildTaskOutput struct {
	Task      *domain.CombinedTask
	Lease     domain.LeaseStatus // Lease state seen before any reclaim
	Notified  int                // Chats told about a reclaimed lease
	Purged    int
	Reclaimed bool
}

// BuildTask coalesces every unprocessed inbound message into one task.
type BuildTask struct {
	store     domain.CoordinatorStore
	transport domain.Transport
	sender    domain.Sender
	clock     domain.Clock
	logger    domain.Logger
}

// NewBuildTask creates a new BuildTask use case.
// transport and sender may be nil.
func NewBuildTask(
	store domain.CoordinatorStore,
	transport domain.Transport,
	sender domain.Sender,
	clock domain.Clock,
	logger domain.Logger,
) *BuildTask {
	return &BuildTask{
		store:     store,
		transport: transport,
		sender:    sender,
		clock:     clock,
		logger:    logger,
	}
}

// Execute inspects the lease, reclaims it when stale, ingests and purges
// messages, then builds the combined task.
func (uc *BuildTask) Execute(ctx context.Context, in BuildTaskInput) (*BuildTaskOutput, error) {
	lease, err := uc.store.Lease(ctx)
	if err != nil {
		return nil, fmt.Errorf("read lease: %w", err)
	}
	out := &BuildTaskOutput{Lease: domain.InspectLease(lease, uc.clock.Now(), in.StaleAfter)}

	switch out.Lease.State {
	case domain.LeaseHeld:
		return out, nil
	case domain.LeaseStale:
		notified, err := shared.ReclaimLease(ctx, uc.store, uc.sender, uc.logger, out.Lease)
		if errors.Is(err, domain.ErrLeaseChanged) {
			// Another coordinator got there first.
			return uc.reinspect(ctx, in.StaleAfter)
		}
		if err != nil {
			return nil, err
		}
		out.Notified = notified
		out.Reclaimed = true
	}

	shared.IngestLogged(ctx, uc.transport, uc.store, uc.logger)

	now := uc.clock.Now()
	purged, err := uc.store.PurgeExpired(ctx, now, in.Retention)
	if err != nil {
		uc.logger.Warn(0, "purge", err.Error())
	} else if purged > 0 {
		uc.logger.Info(0, "purge", fmt.Sprintf("removed %d expired messages", purged))
	}
	out.Purged = purged

	records, err := uc.store.ListUnprocessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}
	if len(records) == 0 {
		return out, nil
	}
	slices.SortStableFunc(records, func(a, b *domain.MessageRecord) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	all, err := uc.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	recent := domain.RenderRecentContext(all, records[0].ID, now, in.Retention.ContextWindow)

	task := domain.BuildCombinedTask(records, recent, out.Reclaimed)
	for _, w := range task.Warnings {
		uc.logger.Warn(task.PrimaryID(), "task", w)
	}
	out.Task = task
	return out, nil
}

// reinspect reports the lease as it is after a lost reclaim, without a task.
// Whatever it shows is left for the next cycle.
func (uc *BuildTask) reinspect(ctx context.Context, staleAfter time.Duration) (*BuildTaskOutput, error) {
	lease, err := uc.store.Lease(ctx)
	if err != nil {
		return nil, fmt.Errorf("read lease: %w", err)
	}
	return &BuildTaskOutput{Lease: domain.InspectLease(lease, uc.clock.Now(), staleAfter)}, nil
}
