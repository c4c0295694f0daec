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

func TestCheckPending_Execute(t *testing.T) {
	tests := []struct {
		setup       func(f *fixture)
		name        string
		wantStatus  usecase.CheckStatus
		wantPending int
		wantPulls   int
	}{
		{
			name:       "idle",
			setup:      func(*fixture) {},
			wantStatus: usecase.CheckIdle,
			wantPulls:  1,
		},
		{
			name: "pulled message pending",
			setup: func(f *fixture) {
				f.transport.Batches = [][]domain.InboundMessage{{inboundMsg(1, "hi", baseTime)}}
			},
			wantStatus:  usecase.CheckPending,
			wantPending: 1,
			wantPulls:   1,
		},
		{
			name: "held lease",
			setup: func(f *fixture) {
				f.holdLease(time.Minute, 1)
				f.seed(inboundMsg(2, "queued", baseTime))
			},
			wantStatus: usecase.CheckBusy,
		},
		{
			name: "stale lease needs reclaim",
			setup: func(f *fixture) {
				f.holdLease(time.Hour, 1)
			},
			wantStatus: usecase.CheckPending,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)
			uc := usecase.NewCheckPending(f.store, f.transport, f.clock, f.logger)

			out, err := uc.Execute(context.Background(), usecase.CheckPendingInput{StaleAfter: 30 * time.Minute})

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, tt.wantPending, out.Pending)
			assert.Equal(t, tt.wantPulls, f.transport.Pulls)
		})
	}
}

func TestCheckPending_NeverTouchesLease(t *testing.T) {
	f := newFixture()
	f.holdLease(time.Hour, 1)
	uc := usecase.NewCheckPending(f.store, f.transport, f.clock, f.logger)

	_, err := uc.Execute(context.Background(), usecase.CheckPendingInput{})

	require.NoError(t, err)
	require.NotNil(t, f.store.LeaseValue)
	assert.Equal(t, 0, f.store.ReleaseCalls)
}

func TestCheckPending_NoTransport(t *testing.T) {
	f := newFixture()
	f.seed(inboundMsg(1, "stored", baseTime))
	uc := usecase.NewCheckPending(f.store, nil, f.clock, f.logger)

	out, err := uc.Execute(context.Background(), usecase.CheckPendingInput{})

	require.NoError(t, err)
	assert.Equal(t, usecase.CheckPending, out.Status)
}
