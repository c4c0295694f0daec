package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/relay/internal/domain"
)

// PurgeMessagesInput contains the retention policy to apply.
type PurgeMessagesInput struct {
	Retention domain.RetentionPolicy
}

// PurgeMessagesOutput contains the number of removed records.
type PurgeMessagesOutput struct {
	Removed int
}

// PurgeMessages drops processed messages past their retention.
type PurgeMessages struct {
	store  domain.MessageStore
	clock  domain.Clock
	logger domain.Logger
}

// NewPurgeMessages creates a new PurgeMessages use case.
func NewPurgeMessages(store domain.MessageStore, clock domain.Clock, logger domain.Logger) *PurgeMessages {
	return &PurgeMessages{store: store, clock: clock, logger: logger}
}

// Execute purges expired records.
func (uc *PurgeMessages) Execute(ctx context.Context, in PurgeMessagesInput) (*PurgeMessagesOutput, error) {
	removed, err := uc.store.PurgeExpired(ctx, uc.clock.Now(), in.Retention)
	if err != nil {
		return nil, fmt.Errorf("purge messages: %w", err)
	}
	if removed > 0 {
		uc.logger.Info(0, "purge", fmt.Sprintf("removed %d expired messages", removed))
	}
	return &PurgeMessagesOutput{Removed: removed}, nil
}
