package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuildTask(f *fixture) *usecase.BuildTask {
	return usecase.NewBuildTask(f.store, f.transport, f.sender, f.clock, f.logger)
}

func TestBuildTask_NothingPending(t *testing.T) {
	f := newFixture()

	out, err := newBuildTask(f).Execute(context.Background(), usecase.BuildTaskInput{})

	require.NoError(t, err)
	assert.Nil(t, out.Task)
	assert.Equal(t, domain.LeaseFree, out.Lease.State)
	assert.Equal(t, 1, f.transport.Pulls)
}

func TestBuildTask_OrdersByTimestamp(t *testing.T) {
	f := newFixture()
	f.transport.Batches = [][]domain.InboundMessage{{
		inboundMsg(30, "third", baseTime.Add(-time.Minute)),
		inboundMsg(10, "first", baseTime.Add(-3*time.Minute)),
		inboundMsg(20, "second", baseTime.Add(-2*time.Minute)),
	}}

	out, err := newBuildTask(f).Execute(context.Background(), usecase.BuildTaskInput{})

	require.NoError(t, err)
	require.NotNil(t, out.Task)
	assert.Equal(t, []int64{10, 20, 30}, out.Task.MessageIDs)
	assert.Equal(t, int64(10), out.Task.PrimaryID())
	assert.Equal(t, testChat, out.Task.ChatID)
	assert.Equal(t, 1, f.transport.Acks)
	first := strings.Index(out.Task.Instruction, "first")
	third := strings.Index(out.Task.Instruction, "third")
	assert.Less(t, first, third)
}

func TestBuildTask_SkipsEmptyMessages(t *testing.T) {
	f := newFixture()
	f.transport.Batches = [][]domain.InboundMessage{{
		inboundMsg(1, "  ", baseTime),
		inboundMsg(2, "real", baseTime),
	}}

	out, err := newBuildTask(f).Execute(context.Background(), usecase.BuildTaskInput{})

	require.NoError(t, err)
	assert.Equal(t, []int64{2}, out.Task.MessageIDs)
	assert.Nil(t, f.store.Record(1))
}

func TestBuildTask_IncludesRecentContext(t *testing.T) {
	f := newFixture()
	f.seed(inboundMsg(1, "earlier question", baseTime.Add(-time.Hour)))
	f.store.Record(1).Processed = true
	f.store.Messages = append(f.store.Messages,
		domain.NewOutboundRecord(testChat, "earlier answer", []int64{1}, nil, baseTime.Add(-50*time.Minute)))
	f.seed(inboundMsg(2, "follow up", baseTime))

	out, err := newBuildTask(f).Execute(context.Background(), usecase.BuildTaskInput{})

	require.NoError(t, err)
	assert.Contains(t, out.Task.RecentContext, "Mika: earlier question")
	assert.Contains(t, out.Task.RecentContext, "🤖: earlier answer")
	assert.Contains(t, out.Task.Instruction, "[Reference]")
}

func TestBuildTask_HeldLease(t *testing.T) {
	f := newFixture()
	f.holdLease(29*time.Minute, 1)
	f.seed(inboundMsg(2, "waiting", baseTime))

	out, err := newBuildTask(f).Execute(context.Background(), usecase.BuildTaskInput{StaleAfter: 30 * time.Minute})

	require.NoError(t, err)
	assert.Nil(t, out.Task)
	assert.Equal(t, domain.LeaseHeld, out.Lease.State)
	assert.Zero(t, f.transport.Pulls)
	assert.NotNil(t, f.store.LeaseValue)
}

func TestBuildTask_StaleLeaseReclaimed(t *testing.T) {
	f := newFixture()
	f.seed(inboundMsg(1, "abandoned", baseTime.Add(-time.Hour)))
	f.holdLease(45*time.Minute, 1)

	out, err := newBuildTask(f).Execute(context.Background(), usecase.BuildTaskInput{StaleAfter: 30 * time.Minute})

	require.NoError(t, err)
	assert.Equal(t, domain.LeaseStale, out.Lease.State)
	assert.True(t, out.Reclaimed)
	assert.Equal(t, 1, out.Notified)
	assert.Nil(t, f.store.LeaseValue)
	require.NotNil(t, out.Task)
	assert.True(t, out.Task.ResumedFromStale)
	assert.True(t, f.logger.HasLevel("WARN"))
}

func TestBuildTask_LostReclaimBuildsNothing(t *testing.T) {
	f := newFixture()
	f.seed(inboundMsg(1, "abandoned", baseTime.Add(-time.Hour)))
	f.holdLease(45*time.Minute, 1)
	f.store.ReclaimLost = true

	out, err := newBuildTask(f).Execute(context.Background(), usecase.BuildTaskInput{StaleAfter: 30 * time.Minute})

	require.NoError(t, err)
	assert.Nil(t, out.Task)
	assert.False(t, out.Reclaimed)
	assert.Zero(t, f.transport.Pulls)
	assert.Empty(t, f.sender.Sent)
	assert.NotNil(t, f.store.LeaseValue)
}

func TestBuildTask_PurgesExpired(t *testing.T) {
	f := newFixture()
	f.seed(inboundMsg(1, "ancient", baseTime.Add(-40*24*time.Hour)))
	f.store.Record(1).Processed = true

	out, err := newBuildTask(f).Execute(context.Background(), usecase.BuildTaskInput{Retention: domain.DefaultRetention()})

	require.NoError(t, err)
	assert.Equal(t, 1, out.Purged)
	assert.Empty(t, f.store.Messages)
}

func TestBuildTask_TransportFailureIsLogged(t *testing.T) {
	f := newFixture()
	f.transport.PullErr = errors.New("network")
	f.seed(inboundMsg(1, "stored earlier", baseTime))

	out, err := newBuildTask(f).Execute(context.Background(), usecase.BuildTaskInput{})

	require.NoError(t, err)
	require.NotNil(t, out.Task)
	assert.True(t, f.logger.HasLevel("WARN"))
}

func TestBuildTask_InvalidAttachmentWarns(t *testing.T) {
	f := newFixture()
	msg := inboundMsg(1, "see file", baseTime)
	msg.Attachments = []domain.Attachment{{Kind: domain.AttachmentDocument}}
	f.seed(msg)

	out, err := newBuildTask(f).Execute(context.Background(), usecase.BuildTaskInput{})

	require.NoError(t, err)
	require.NotNil(t, out.Task)
	assert.Contains(t, out.Task.Instruction, "see file")
	assert.NotEmpty(t, out.Task.Warnings)
}
