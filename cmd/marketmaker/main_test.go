package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polymaker/config"
	"github.com/alejandrodnm/polymaker/internal/adapters/storage"
)

func TestEngineConfig(t *testing.T) {
	cfg := &config.Config{
		Engine: config.EngineConfig{
			ReconcileIntervalSeconds: 7,
			StaleTradeSeconds:        20,
			RecentUpdateSeconds:      4,
			VenueTimeoutSeconds:      3,
			PurgeIntervalMs:          500,
			MarketsRefreshSeconds:    60,
			StatusIntervalSeconds:    30,
		},
		Trading: config.TradingConfig{
			MinSpread:    0.08,
			MinMergeSize: 25,
			BandPct:      0.2,
			TakeoverSize: 3,
		},
	}
	ec := engineConfig(cfg)

	assert.Equal(t, 7*time.Second, ec.ReconcileInterval)
	assert.Equal(t, 20*time.Second, ec.StaleTradeAfter)
	assert.Equal(t, 4*time.Second, ec.RecentUpdate)
	assert.Equal(t, 3*time.Second, ec.VenueTimeout)
	assert.Equal(t, 500*time.Millisecond, ec.PurgeInterval)
	assert.Equal(t, time.Minute, ec.MarketsRefresh)
	assert.Equal(t, 30*time.Second, ec.StatusInterval)
	assert.InDelta(t, 0.08, ec.Params.MinSpread, 1e-12)
	assert.InDelta(t, 3, ec.Params.TakeoverSize, 1e-12)
	assert.InDelta(t, 25, ec.MinMergeSize, 1e-12)
	assert.InDelta(t, 0.2, ec.BandPct, 1e-12)
}

func TestSetRiskOff(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, setRiskOff(ctx, store, "0xm", time.Hour, "news"))
	rec, found, err := store.RiskOff(ctx, "0xm")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, rec.Active(time.Now()))
	assert.Equal(t, "news", rec.Reason)

	require.NoError(t, setRiskOff(ctx, store, "0xm", 0, ""))
	_, found, err = store.RiskOff(ctx, "0xm")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMergesSupported(t *testing.T) {
	const eoa = "0x9A3c5F1e2B7d4C8a6E0f1D2b3C4a5E6f7A8b9C0d"

	tests := []struct {
		name   string
		funder string
		want   bool
	}{
		{"funder is the signer", eoa, true},
		{"checksum case differs", strings.ToLower(eoa), true},
		{"no funder configured", "", true},
		{"proxy wallet funder", "0x1111111111111111111111111111111111111111", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mergesSupported(eoa, tt.funder))
		})
	}
}
