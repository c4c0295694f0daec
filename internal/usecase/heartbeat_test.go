package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/runoshun/relay/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeat_Execute(t *testing.T) {
	t.Run("refreshes held lease", func(t *testing.T) {
		f := newFixture()
		f.holdLease(20*time.Minute, 3)

		out, err := usecase.NewHeartbeat(f.store, f.clock, f.logger).Execute(context.Background(), usecase.HeartbeatInput{})

		require.NoError(t, err)
		require.NotNil(t, out.Lease)
		assert.Equal(t, baseTime, out.Lease.LastHeartbeatAt)
		assert.Equal(t, baseTime.Add(-20*time.Minute), out.Lease.AcquiredAt)
		assert.True(t, f.logger.HasLevel("DEBUG"))
	})

	t.Run("no-op when free", func(t *testing.T) {
		f := newFixture()

		out, err := usecase.NewHeartbeat(f.store, f.clock, f.logger).Execute(context.Background(), usecase.HeartbeatInput{})

		require.NoError(t, err)
		assert.Nil(t, out.Lease)
		assert.Nil(t, f.store.LeaseValue)
	})

	t.Run("store error", func(t *testing.T) {
		f := newFixture()
		f.store.HeartbeatErr = errors.New("locked")

		_, err := usecase.NewHeartbeat(f.store, f.clock, f.logger).Execute(context.Background(), usecase.HeartbeatInput{})

		assert.ErrorContains(t, err, "locked")
	})
}
