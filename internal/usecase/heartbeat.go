package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/relay/internal/domain"
)

// HeartbeatInput contains the parameters for a heartbeat.
type HeartbeatInput struct{}

// HeartbeatOutput contains the result of a heartbeat.
type HeartbeatOutput struct {
	Lease *domain.Lease // Refreshed lease, nil when none is held
}

// Heartbeat proves the running worker is alive.
type Heartbeat struct {
	store  domain.LeaseStore
	clock  domain.Clock
	logger domain.Logger
}

// NewHeartbeat creates a new Heartbeat use case.
func NewHeartbeat(store domain.LeaseStore, clock domain.Clock, logger domain.Logger) *Heartbeat {
	return &Heartbeat{store: store, clock: clock, logger: logger}
}

// Execute refreshes the lease. It is a no-op when no lease is held.
func (uc *Heartbeat) Execute(ctx context.Context, _ HeartbeatInput) (*HeartbeatOutput, error) {
	if err := uc.store.Heartbeat(ctx, uc.clock.Now()); err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}
	lease, err := uc.store.Lease(ctx)
	if err != nil {
		return nil, fmt.Errorf("read lease: %w", err)
	}
	if lease != nil && len(lease.MessageIDs) > 0 {
		uc.logger.Debug(lease.MessageIDs[0], "lease", "heartbeat")
	}
	return &HeartbeatOutput{Lease: lease}, nil
}
