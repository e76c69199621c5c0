package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EXPIRATION_BATCH_SIZE", "")
	cfg := Load()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 25, cfg.Sweeper.BatchSize)
	assert.Equal(t, 10, cfg.Sweeper.MaxDeliveries)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.Equal(t, int64(99), cfg.Ledger.MaxTimestampOffset)
	assert.Equal(t, 5*time.Minute, cfg.BalanceCacheTTL)
	assert.Equal(t, time.Second, cfg.Sweeper.RedeliveryBaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.Sweeper.RedeliveryMaxDelay)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("EXPIRATION_BATCH_SIZE", "50")
	t.Setenv("EXPIRATION_SCAN_INTERVAL", "1m")
	t.Setenv("EXPIRATION_SWEEPER_ENABLED", "false")
	t.Setenv("LEDGER_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("EXPIRATION_REDELIVERY_BASE_DELAY", "250ms")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 50, cfg.Sweeper.BatchSize)
	assert.Equal(t, time.Minute, cfg.Sweeper.ScanInterval)
	assert.False(t, cfg.Sweeper.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Sweeper.RedeliveryBaseDelay)
	assert.Equal(t, 5, cfg.Ledger.MaxAttempts, "unparsable values fall back to the default")
}
