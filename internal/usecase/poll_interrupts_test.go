package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPollInterrupts(f *fixture) *usecase.PollInterrupts {
	return usecase.NewPollInterrupts(f.store, f.transport, f.clock, f.logger)
}

func TestPollInterrupts_RecordsNewMessages(t *testing.T) {
	f := newFixture()
	f.seed(inboundMsg(1, "running task", baseTime.Add(-time.Hour)))
	f.holdLease(time.Minute, 1)
	f.transport.Batches = [][]domain.InboundMessage{{inboundMsg(2, "one more thing", baseTime)}}

	out, err := newPollInterrupts(f).Execute(context.Background(), usecase.PollInterruptsInput{})

	require.NoError(t, err)
	require.Len(t, out.Added, 1)
	assert.Equal(t, int64(2), out.Added[0].MessageID)
	assert.Equal(t, "one more thing", out.Added[0].Text)
	assert.Equal(t, baseTime, out.Added[0].DetectedAt)
	assert.Len(t, out.Pending, 1)
	assert.Len(t, f.store.Interrupts, 1)
	assert.False(t, f.store.Record(2).Processed)
}

func TestPollInterrupts_Dedup(t *testing.T) {
	f := newFixture()
	f.holdLease(time.Minute, 1)
	f.seed(inboundMsg(1, "owned", baseTime), inboundMsg(2, "extra", baseTime))
	uc := newPollInterrupts(f)

	first, err := uc.Execute(context.Background(), usecase.PollInterruptsInput{})
	require.NoError(t, err)
	second, err := uc.Execute(context.Background(), usecase.PollInterruptsInput{})
	require.NoError(t, err)

	assert.Len(t, first.Added, 1)
	assert.Empty(t, second.Added)
	assert.Len(t, second.Pending, 1)
	assert.Equal(t, []int64{2}, domain.InterruptIDs(f.store.Interrupts))
}

func TestPollInterrupts_RequiresLiveLease(t *testing.T) {
	tests := []struct {
		setup func(f *fixture)
		name  string
	}{
		{name: "free", setup: func(*fixture) {}},
		{name: "stale", setup: func(f *fixture) { f.holdLease(2*time.Hour, 1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)
			f.seed(inboundMsg(2, "extra", baseTime))

			_, err := newPollInterrupts(f).Execute(context.Background(), usecase.PollInterruptsInput{StaleAfter: 30 * time.Minute})

			assert.ErrorIs(t, err, domain.ErrLeaseNotHeld)
			assert.Empty(t, f.store.Interrupts)
		})
	}
}

func TestPollInterrupts_ListOnly(t *testing.T) {
	f := newFixture()
	f.store.Interrupts = []domain.PendingInterrupt{{MessageID: 9, Text: "queued"}}
	f.transport.Batches = [][]domain.InboundMessage{{inboundMsg(10, "not pulled", baseTime)}}

	out, err := newPollInterrupts(f).Execute(context.Background(), usecase.PollInterruptsInput{ListOnly: true})

	require.NoError(t, err)
	assert.Equal(t, []int64{9}, domain.InterruptIDs(out.Pending))
	assert.Zero(t, f.transport.Pulls)
}
