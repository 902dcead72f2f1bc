package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polymaker/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.ReconcileInterval())
	assert.Equal(t, 15*time.Second, cfg.StaleTradeAfter())
	assert.Equal(t, 5*time.Second, cfg.RecentUpdate())
	assert.Equal(t, 10*time.Second, cfg.VenueTimeout())
	assert.Equal(t, time.Second, cfg.PurgeInterval())
	assert.Equal(t, 30*time.Second, cfg.MarketsRefresh())
	assert.Zero(t, cfg.StatusInterval())

	assert.InDelta(t, 0.005, cfg.Trading.PriceChangeThreshold, 1e-12)
	assert.InDelta(t, 0.10, cfg.Trading.SizeChangeThreshold, 1e-12)
	assert.InDelta(t, 20, cfg.Trading.MinMergeSize, 1e-12)
	assert.InDelta(t, 250, cfg.Trading.AbsoluteMaxPosition, 1e-12)
	assert.InDelta(t, 0.10, cfg.Trading.MinSpread, 1e-12)
	assert.InDelta(t, 0.7, cfg.Trading.MinSizeRoundRatio, 1e-12)
	assert.Zero(t, cfg.Trading.MinSentiment)

	assert.Equal(t, "https://clob.polymarket.com", cfg.API.CLOBBase)
	assert.Equal(t, "https://data-api.polymarket.com", cfg.API.DataBase)
	assert.Equal(t, "polymaker.db", cfg.Storage.DSN)
	assert.Equal(t, "config/markets.yaml", cfg.Markets.File)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("POLY_PRIVATE_KEY", "0xabc")
	t.Setenv("POLY_FUNDER", "0xfunder")

	path := writeConfig(t, `
engine:
  reconcile_interval_seconds: 3
  status_interval_seconds: 60
  dry_run: true
trading:
  min_spread: 0.08
  min_sentiment: 0.5
storage:
  dsn: ":memory:"
log:
  level: warn
  format: json
wallet:
  private_key: "0xfromfile"
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.ReconcileInterval())
	assert.Equal(t, time.Minute, cfg.StatusInterval())
	assert.True(t, cfg.Engine.DryRun)
	assert.InDelta(t, 0.08, cfg.Trading.MinSpread, 1e-12)
	assert.InDelta(t, 0.5, cfg.Trading.MinSentiment, 1e-12)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)

	assert.Equal(t, "debug", cfg.Log.Level, "env wins over yaml")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "0xabc", cfg.Wallet.PrivateKey)
	assert.Equal(t, "0xfunder", cfg.Wallet.Funder)
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "engine: [unclosed"))
	assert.Error(t, err)
}
