// Package shared holds steps used by more than one use case.
package shared

import (
	"context"
	"fmt"

	"github.com/runoshun/relay/internal/domain"
)

// Ingest pulls the transport and appends every non-empty message to the store.
// Redelivered messages are no-ops. The transport is acknowledged only after
// every message was stored, so a crash in between means redelivery, not loss.
// A nil transport ingests nothing.
func Ingest(ctx context.Context, transport domain.Transport, store domain.MessageStore, logger domain.Logger) (int, error) {
	if transport == nil {
		return 0, nil
	}

	msgs, err := transport.Pull(ctx)
	if err != nil {
		return 0, fmt.Errorf("pull messages: %w", err)
	}

	added := 0
	for _, msg := range msgs {
		if msg.IsEmpty() {
			logger.Debug(0, "ingest", fmt.Sprintf("skipped empty message %d", msg.ID))
			continue
		}
		ok, err := store.Append(ctx, domain.NewInboundRecord(msg))
		if err != nil {
			return added, fmt.Errorf("store message %d: %w", msg.ID, err)
		}
		if ok {
			added++
			logger.Info(msg.ID, "ingest", fmt.Sprintf("received from %s", msg.Author.DisplayName()))
		}
	}

	if err := transport.Ack(ctx); err != nil {
		return added, fmt.Errorf("ack messages: %w", err)
	}
	return added, nil
}

// IngestLogged runs Ingest and logs a failure instead of returning it.
// Transport errors never abort a cycle; the next cycle retries.
func IngestLogged(ctx context.Context, transport domain.Transport, store domain.MessageStore, logger domain.Logger) int {
	added, err := Ingest(ctx, transport, store, logger)
	if err != nil {
		logger.Warn(0, "ingest", err.Error())
	}
	return added
}
