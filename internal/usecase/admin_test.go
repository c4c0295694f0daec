package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/runoshun/relay/internal/domain"
	"github.com/runoshun/relay/internal/testutil"
	"github.com/runoshun/relay/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeMessages_Execute(t *testing.T) {
	f := newFixture()
	f.seed(
		inboundMsg(1, "old processed", baseTime.Add(-31*24*time.Hour)),
		inboundMsg(2, "old unprocessed", baseTime.Add(-31*24*time.Hour)),
		inboundMsg(3, "recent processed", baseTime.Add(-time.Hour)),
	)
	f.store.Record(1).Processed = true
	f.store.Record(3).Processed = true

	out, err := usecase.NewPurgeMessages(f.store, f.clock, f.logger).
		Execute(context.Background(), usecase.PurgeMessagesInput{Retention: domain.DefaultRetention()})

	require.NoError(t, err)
	assert.Equal(t, 1, out.Removed)
	assert.Nil(t, f.store.Record(1))
	assert.NotNil(t, f.store.Record(2))
	assert.NotNil(t, f.store.Record(3))
	assert.True(t, f.logger.HasLevel("INFO"))
}

func TestInitStore_Execute(t *testing.T) {
	t.Run("creates store and config", func(t *testing.T) {
		store := testutil.NewMockStore()
		store.Initialized = false
		manager := testutil.NewMockConfigManager()
		manager.DataConfigInfo.Path = "/data/config.toml"

		out, err := usecase.NewInitStore(store, manager).Execute(context.Background(), usecase.InitStoreInput{})

		require.NoError(t, err)
		assert.True(t, store.Initialized)
		assert.True(t, out.ConfigCreated)
		assert.Equal(t, "/data/config.toml", out.ConfigPath)
		require.NotNil(t, manager.InitConfig)
		assert.Equal(t, domain.StoreBackendFile, manager.InitConfig.Store.Backend)
	})

	t.Run("keeps existing config", func(t *testing.T) {
		manager := testutil.NewMockConfigManager()
		manager.InitErr = domain.ErrConfigExists

		out, err := usecase.NewInitStore(testutil.NewMockStore(), manager).Execute(context.Background(), usecase.InitStoreInput{})

		require.NoError(t, err)
		assert.False(t, out.ConfigCreated)
	})

	t.Run("store failure", func(t *testing.T) {
		store := testutil.NewMockStore()
		store.InitErr = errors.New("read-only file system")
		manager := testutil.NewMockConfigManager()

		_, err := usecase.NewInitStore(store, manager).Execute(context.Background(), usecase.InitStoreInput{})

		assert.ErrorContains(t, err, "read-only")
		assert.Zero(t, manager.InitCalls)
	})
}

func TestShowConfig_Execute(t *testing.T) {
	t.Run("returns both config infos and masked effective config", func(t *testing.T) {
		manager := testutil.NewMockConfigManager()
		manager.DataConfigInfo = domain.ConfigInfo{
			Path:    "/data/config.toml",
			Content: "[store]\nbackend = \"sqlite\"",
			Exists:  true,
		}
		manager.GlobalConfigInfo = domain.ConfigInfo{
			Path:   "/home/test/.config/relay/config.toml",
			Exists: false,
		}
		loader := testutil.NewMockConfigLoader()
		loader.Config.Telegram.Token = "123456:secret"
		loader.Config.Warnings = []string{"unknown key in config.toml: foo"}

		out, err := usecase.NewShowConfig(manager, loader).Execute(context.Background(), usecase.ShowConfigInput{})

		require.NoError(t, err)
		assert.True(t, out.DataConfig.Exists)
		assert.Equal(t, "[store]\nbackend = \"sqlite\"", out.DataConfig.Content)
		assert.False(t, out.GlobalConfig.Exists)
		assert.Equal(t, "1234********", out.EffectiveConfig.Telegram.Token)
		assert.Equal(t, "123456:secret", loader.Config.Telegram.Token)
		assert.Equal(t, []string{"unknown key in config.toml: foo"}, out.Warnings)
	})

	t.Run("load error", func(t *testing.T) {
		loader := testutil.NewMockConfigLoader()
		loader.LoadErr = domain.ErrInvalidConfig

		_, err := usecase.NewShowConfig(testutil.NewMockConfigManager(), loader).Execute(context.Background(), usecase.ShowConfigInput{})

		assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	})
}
