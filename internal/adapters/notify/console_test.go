package notify_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/polymaker/internal/adapters/notify"
	"github.com/alejandrodnm/polymaker/internal/domain"
)

func TestConsole_PrintStatus(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.PrintStatus([]domain.TokenStatus{
		{
			MarketID: "0xmarket",
			Name:     "Will it rain tomorrow in Madrid?",
			Token:    "71321045679252212594626385532706912750332728571942532289631379312455583992563",
			Position: domain.Position{Size: 20, AvgPrice: 0.46},
			Buy:      domain.RestingOrder{Price: 0.45, Size: 20, State: domain.OrderResting},
			Sell:     domain.RestingOrder{State: domain.OrderPendingReplace},
			InFlight: 1,
		},
		{MarketID: "0xmarket", Token: "no"},
	})

	out := buf.String()
	assert.Contains(t, out, "2 tokens | 1 resting | 1 pending | 1 in-flight | exposure $9.20")
	assert.Contains(t, out, "Will it rain tomorrow in Madrid?")
	assert.Contains(t, out, "713210…2563")
	assert.Contains(t, out, "0.45 x 20.00")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "0xmarket")
}

func TestConsole_PrintStatus_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintStatus(nil)
	assert.Contains(t, buf.String(), "no instruments")
}

func TestConsole_PrintReport(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)
	to := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	n.PrintReport([]domain.MarketReport{
		{MarketID: "0xm1", Fills: 3, BoughtSize: 20, BoughtCost: 9, SoldSize: 5, SoldProceeds: 3, Merges: 1, Merged: 5, GasPOL: 0.03},
		{MarketID: "0xm2", Fills: 1, BoughtSize: 5, BoughtCost: 1},
	}, to.Add(-24*time.Hour), to)

	out := buf.String()
	assert.Contains(t, out, "2026-01-01 12:00")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "$-1.00")
	assert.Contains(t, out, "$-2.00", "total cash flow")
	assert.Contains(t, out, "$10.00", "total cost")
}

func TestConsole_PrintReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintReport(nil, time.Now().Add(-time.Hour), time.Now())
	assert.Contains(t, buf.String(), "No fills or merges in range.")
}
