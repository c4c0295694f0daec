package shared_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/testutil"
	"github.com/runoshun/relay/internal/usecase/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staleStatus(ids ...int64) domain.LeaseStatus {
	lease := domain.NewLease(ids, "rebuild the dashboard", "run-7", now.Add(-time.Hour))
	return domain.InspectLease(&lease, now, 30*time.Minute)
}

func TestStaleNotice(t *testing.T) {
	text := shared.StaleNotice(staleStatus(1))

	assert.Contains(t, text, "rebuild the dashboard")
	assert.Contains(t, text, "Started: 2025-03-01 08:00:00")
	assert.Contains(t, text, "(1h0m0s ago)")
	assert.Contains(t, text, "Restarting")
}

func TestNotifyStaleLease_DistinctChats(t *testing.T) {
	store := testutil.NewMockStore()
	for _, m := range []domain.InboundMessage{
		{ID: 1, ChatID: 10, Text: "a", Timestamp: now},
		{ID: 2, ChatID: 10, Text: "b", Timestamp: now},
		{ID: 3, ChatID: 20, Text: "c", Timestamp: now},
		{ID: 4, ChatID: 30, Text: "not owned", Timestamp: now},
	} {
		store.Messages = append(store.Messages, domain.NewInboundRecord(m))
	}
	sender := &testutil.MockSender{}

	n := shared.NotifyStaleLease(context.Background(), store, sender, &testutil.MockLogger{}, staleStatus(1, 2, 3))

	assert.Equal(t, 2, n)
	require.Len(t, sender.Sent, 2)
	assert.Equal(t, int64(10), sender.Sent[0].ChatID)
	assert.Equal(t, int64(20), sender.Sent[1].ChatID)
}

func TestNotifyStaleLease_Failures(t *testing.T) {
	store := testutil.NewMockStore()
	store.Messages = append(store.Messages, domain.NewInboundRecord(msg(1, "a")))
	logger := &testutil.MockLogger{}

	n := shared.NotifyStaleLease(context.Background(), store, &testutil.MockSender{Err: errors.New("403")}, logger, staleStatus(1))
	assert.Zero(t, n)
	assert.True(t, logger.HasLevel("WARN"))

	n = shared.NotifyStaleLease(context.Background(), store, nil, logger, staleStatus(1))
	assert.Zero(t, n)
}

func TestReclaimLease(t *testing.T) {
	store := testutil.NewMockStore()
	status := staleStatus(1)
	store.LeaseValue = status.Lease
	store.Interrupts = []domain.PendingInterrupt{{MessageID: 2}}

	_, err := shared.ReclaimLease(context.Background(), store, nil, &testutil.MockLogger{}, status)

	require.NoError(t, err)
	assert.Nil(t, store.LeaseValue)
	assert.Empty(t, store.Interrupts)
}

func TestReclaimLease_StoreError(t *testing.T) {
	store := testutil.NewMockStore()
	status := staleStatus(1)
	store.LeaseValue = status.Lease
	store.ReclaimErr = errors.New("permission denied")

	_, err := shared.ReclaimLease(context.Background(), store, nil, &testutil.MockLogger{}, status)

	assert.ErrorContains(t, err, "permission denied")
}

func TestReclaimLease_LateReclaimKeepsNewLease(t *testing.T) {
	store := testutil.NewMockStore()
	ctx := context.Background()
	status := staleStatus(1)
	store.LeaseValue = status.Lease
	store.Messages = append(store.Messages, domain.NewInboundRecord(domain.InboundMessage{ID: 1, ChatID: 7, Text: "x", Timestamp: now}))
	first, second := &testutil.MockSender{}, &testutil.MockSender{}

	// Both coordinators inspected the same stale lease; the first wins.
	seen := status
	_, err := shared.ReclaimLease(ctx, store, first, &testutil.MockLogger{}, seen)
	require.NoError(t, err)
	ok, err := store.Acquire(ctx, domain.NewLease([]int64{1}, "x", "run-A", now))
	require.NoError(t, err)
	require.True(t, ok)
	store.Interrupts = []domain.PendingInterrupt{{MessageID: 2}}

	notified, err := shared.ReclaimLease(ctx, store, second, &testutil.MockLogger{}, seen)

	require.ErrorIs(t, err, domain.ErrLeaseChanged)
	assert.Zero(t, notified)
	assert.Empty(t, second.Sent)
	assert.Len(t, first.Sent, 1)
	require.NotNil(t, store.LeaseValue)
	assert.Equal(t, "run-A", store.LeaseValue.RunID)
	assert.Len(t, store.Interrupts, 1, "the new run's interrupts are kept")

	ok, err = store.Acquire(ctx, domain.NewLease([]int64{1}, "x", "run-B", now))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReclaimLease_Free(t *testing.T) {
	_, err := shared.ReclaimLease(context.Background(), testutil.NewMockStore(), nil, &testutil.MockLogger{}, domain.LeaseStatus{State: domain.LeaseFree})

	assert.ErrorIs(t, err, domain.ErrLeaseNotHeld)
}
