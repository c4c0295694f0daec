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

var now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func msg(id int64, text string) domain.InboundMessage {
	return domain.InboundMessage{ID: id, ChatID: 1, Text: text, Timestamp: now}
}

func TestIngest(t *testing.T) {
	store := testutil.NewMockStore()
	logger := &testutil.MockLogger{}
	transport := &testutil.MockTransport{Batches: [][]domain.InboundMessage{
		{msg(1, "hello"), msg(2, ""), msg(1, "hello")},
	}}

	added, err := shared.Ingest(context.Background(), transport, store, logger)

	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, transport.Acks)
	assert.Len(t, store.Messages, 1)
}

func TestIngest_NilTransport(t *testing.T) {
	added, err := shared.Ingest(context.Background(), nil, testutil.NewMockStore(), &testutil.MockLogger{})

	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestIngest_NoAckWhenStoreFails(t *testing.T) {
	store := testutil.NewMockStore()
	store.AppendErr = errors.New("disk full")
	transport := &testutil.MockTransport{Batches: [][]domain.InboundMessage{{msg(1, "hello")}}}

	_, err := shared.Ingest(context.Background(), transport, store, &testutil.MockLogger{})

	assert.ErrorContains(t, err, "disk full")
	assert.Zero(t, transport.Acks)
}

func TestIngestLogged(t *testing.T) {
	logger := &testutil.MockLogger{}
	transport := &testutil.MockTransport{PullErr: errors.New("timeout")}

	added := shared.IngestLogged(context.Background(), transport, testutil.NewMockStore(), logger)

	assert.Zero(t, added)
	assert.True(t, logger.HasLevel("WARN"))
}
