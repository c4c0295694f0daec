package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, StoreBackendFile, cfg.Store.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Lease.StaleAfter.Std())
	assert.Equal(t, DefaultRetention(), cfg.Retention.Policy())
	assert.True(t, cfg.Telegram.AckStart)
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 45m ")))
	assert.Equal(t, 45*time.Minute, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "45m0s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestConfig_Masked(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Telegram.Token = "123456:ABCDEF"

	masked := cfg.Masked()
	assert.Equal(t, "1234********", masked.Telegram.Token)
	assert.Equal(t, "123456:ABCDEF", cfg.Telegram.Token)
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("abc"))
}

func TestRenderConfigTemplate(t *testing.T) {
	out := RenderConfigTemplate(NewDefaultConfig())

	assert.Contains(t, out, `backend = "file"`)
	assert.Contains(t, out, `stale_after = "30m0s"`)
	assert.Contains(t, out, `processed_ttl = "720h0m0s"`)
	assert.Contains(t, out, `level = "info"`)
}
