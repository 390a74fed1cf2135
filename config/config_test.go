package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetBookingConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("EXPIRY_INTERVAL", "")
		t.Setenv("EXPIRY_STALE_AFTER", "")
		t.Setenv("CANCEL_CUTOFF", "")

		cfg := GetBookingConfig()
		assert.Equal(t, 10*time.Minute, cfg.ExpiryInterval)
		assert.Equal(t, 30*time.Minute, cfg.StaleAfter)
		assert.Equal(t, time.Duration(0), cfg.CancelCutoff)
	})

	t.Run("FromEnv", func(t *testing.T) {
		t.Setenv("EXPIRY_INTERVAL", "1m")
		t.Setenv("EXPIRY_STALE_AFTER", "15m")
		t.Setenv("CANCEL_CUTOFF", "30m")

		cfg := GetBookingConfig()
		assert.Equal(t, time.Minute, cfg.ExpiryInterval)
		assert.Equal(t, 15*time.Minute, cfg.StaleAfter)
		assert.Equal(t, 30*time.Minute, cfg.CancelCutoff)
	})

	t.Run("InvalidFallsBack", func(t *testing.T) {
		t.Setenv("EXPIRY_INTERVAL", "soon")
		cfg := GetBookingConfig()
		assert.Equal(t, 10*time.Minute, cfg.ExpiryInterval)
	})
}

func TestGetServerConfig(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("INVENTORY_BACKEND", "")

	cfg := GetServerConfig()
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "memory", cfg.InventoryBackend)
	assert.Equal(t, "8080", cfg.Port)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("REDIS_DB", "3")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("NOTIFICATION_QUEUE_BUFFER", "many")

	assert.Equal(t, 3, GetRedisConfig().DB)
	assert.False(t, GetServerConfig().AutoMigrate)
	assert.Equal(t, 1000, GetBookingConfig().QueueBuffer)

	t.Setenv("AUTO_MIGRATE", "maybe")
	assert.True(t, GetServerConfig().AutoMigrate)
}
