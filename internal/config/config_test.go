package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "0 1 * * *", cfg.Batch.OverdueSchedule)
}

func TestLendingDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 50_000.0, cfg.Lending.MinCreditLimit)
	assert.Equal(t, 10_000_000.0, cfg.Lending.MaxCreditLimit)
	assert.Equal(t, 2, cfg.Lending.DefaultOverdueThreshold)

	rate, ok := cfg.Lending.RateForTenor(6)
	require.True(t, ok)
	assert.Equal(t, 0.08, rate)

	_, ok = cfg.Lending.RateForTenor(7)
	assert.False(t, ok)
}

func TestTierTableDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Contains(t, cfg.Tiers, "BASIC")
	require.Contains(t, cfg.Tiers, "PLATINUM")
	basic := cfg.Tiers["BASIC"]
	assert.Equal(t, 500_000.0, basic.DailyDepositLimit)
	assert.Equal(t, 200_000.0, basic.DailyWithdrawalLimit)
	assert.Less(t, basic.DailyWithdrawalLimit, basic.MonthlyWithdrawalLimit)
}
