package shared

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/runoshun/relay/internal/domain"
)

// StaleNotice renders the message sent to a chat whose task was abandoned.
func StaleNotice(status domain.LeaseStatus) string {
	lease := status.Lease
	var b strings.Builder
	b.WriteString("⚠️ The previous task stopped without finishing.\n\n")
	if lease.Summary != "" {
		fmt.Fprintf(&b, "Request: %s\n", lease.Summary)
	}
	fmt.Fprintf(&b, "Started: %s\n", lease.AcquiredAt.Format(domain.TimestampLayout))
	fmt.Fprintf(&b, "Last heartbeat: %s (%s ago)\n",
		lease.LastHeartbeatAt.Format(domain.TimestampLayout),
		status.Idle.Truncate(time.Second))
	b.WriteString("\nRestarting it now.")
	return b.String()
}

// NotifyStaleLease tells every chat tied to the lease's messages that the run
// was abandoned. It returns the number of chats notified. Delivery failures
// are logged; a nil sender notifies nobody.
func NotifyStaleLease(
	ctx context.Context,
	store domain.MessageStore,
	sender domain.Sender,
	logger domain.Logger,
	status domain.LeaseStatus,
) int {
	if status.Lease == nil {
		return 0
	}
	primary := firstOwned(status.Lease)
	if sender == nil {
		logger.Warn(primary, "lease", "stale lease not announced: no sender configured")
		return 0
	}

	records, err := store.ListAll(ctx)
	if err != nil {
		logger.Warn(primary, "lease", fmt.Sprintf("list messages for stale notice: %v", err))
		return 0
	}
	var chats []int64
	for _, rec := range records {
		if rec.IsInbound() && status.Lease.Owns(rec.ID) && !slices.Contains(chats, rec.ChatID) {
			chats = append(chats, rec.ChatID)
		}
	}
	if len(chats) == 0 {
		logger.Warn(primary, "lease", "stale lease not announced: owning messages are gone")
		return 0
	}

	text := StaleNotice(status)
	notified := 0
	for _, chatID := range chats {
		if err := sender.Send(ctx, chatID, text, nil); err != nil {
			logger.Warn(primary, "lease", fmt.Sprintf("stale notice to chat %d failed: %v", chatID, err))
			continue
		}
		notified++
	}
	return notified
}

// ReclaimLease removes an abandoned lease, clears the interrupts its run
// collected and announces it. Those messages are still unprocessed and are
// picked up by the next task. The lease is removed only while it is still
// the one in status; otherwise domain.ErrLeaseChanged is returned and
// nothing else happens.
func ReclaimLease(
	ctx context.Context,
	store domain.CoordinatorStore,
	sender domain.Sender,
	logger domain.Logger,
	status domain.LeaseStatus,
) (notified int, err error) {
	if status.Lease == nil {
		return 0, domain.ErrLeaseNotHeld
	}
	primary := firstOwned(status.Lease)

	reclaimed, err := store.Reclaim(ctx, *status.Lease)
	if err != nil {
		return 0, fmt.Errorf("reclaim lease: %w", err)
	}
	if !reclaimed {
		logger.Info(primary, "lease", fmt.Sprintf("lease of run %s changed before reclaim", runID(status.Lease)))
		return 0, domain.ErrLeaseChanged
	}
	if err := store.ClearInterrupts(ctx); err != nil {
		return 0, fmt.Errorf("clear interrupts: %w", err)
	}
	logger.Warn(primary, "lease", fmt.Sprintf("reclaimed lease idle for %s (run %s)",
		status.Idle.Truncate(time.Second), runID(status.Lease)))

	return NotifyStaleLease(ctx, store, sender, logger, status), nil
}

func firstOwned(lease *domain.Lease) int64 {
	if lease == nil || len(lease.MessageIDs) == 0 {
		return 0
	}
	return lease.MessageIDs[0]
}

func runID(lease *domain.Lease) string {
	if lease == nil || lease.RunID == "" {
		return "unknown"
	}
	return lease.RunID
}
