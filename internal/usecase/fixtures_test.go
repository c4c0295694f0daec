package usecase_test

import (
	"time"

	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/testutil"
)

const testChat int64 = 4242

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store     *testutil.MockStore
	clock     *testutil.MockClock
	logger    *testutil.MockLogger
	transport *testutil.MockTransport
	sender    *testutil.MockSender
}

func newFixture() *fixture {
	return &fixture{
		store:     testutil.NewMockStore(),
		clock:     &testutil.MockClock{NowTime: baseTime},
		logger:    &testutil.MockLogger{},
		transport: &testutil.MockTransport{},
		sender:    &testutil.MockSender{},
	}
}

func inboundMsg(id int64, text string, at time.Time) domain.InboundMessage {
	return domain.InboundMessage{
		ID:        id,
		ChatID:    testChat,
		Text:      text,
		Timestamp: at,
		Author:    domain.Author{FirstName: "Mika", UserID: 7},
	}
}

// seed stores unprocessed inbound records directly.
func (f *fixture) seed(msgs ...domain.InboundMessage) {
	for _, m := range msgs {
		f.store.Messages = append(f.store.Messages, domain.NewInboundRecord(m))
	}
}

// holdLease installs a lease whose last heartbeat was idle ago.
func (f *fixture) holdLease(idle time.Duration, ids ...int64) {
	lease := domain.NewLease(ids, "earlier work", "run-old", f.clock.Now().Add(-idle))
	f.store.LeaseValue = &lease
}
