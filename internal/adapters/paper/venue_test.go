package paper_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polymaker/internal/adapters/paper"
	"github.com/alejandrodnm/polymaker/internal/domain"
)

func buy(token string, price, size float64) domain.OrderRequest {
	return domain.OrderRequest{Token: token, MarketID: "0xm", Side: domain.Buy, Price: price, Size: size}
}

func TestVenue_SubmitAndCancel(t *testing.T) {
	v := paper.NewVenue()
	ctx := context.Background()

	id1, err := v.SubmitOrder(ctx, buy("yes", 0.46, 20))
	require.NoError(t, err)
	id2, err := v.SubmitOrder(ctx, buy("yes", 0.40, 10))
	require.NoError(t, err)
	_, err = v.SubmitOrder(ctx, buy("no", 0.50, 10))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	open, err := v.GetOpenOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 3)

	require.NoError(t, v.CancelOrder(ctx, id1))
	assert.ErrorIs(t, v.CancelOrder(ctx, id1), paper.ErrUnknownOrder)

	require.NoError(t, v.CancelAllForToken(ctx, "yes"))
	open, err = v.GetOpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "no", open[0].Token)
}

func TestVenue_SubmitRejects(t *testing.T) {
	v := paper.NewVenue()
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.OrderRequest
	}{
		{"no token", buy("", 0.5, 10)},
		{"price zero", buy("yes", 0, 10)},
		{"price one", buy("yes", 1, 10)},
		{"no size", buy("yes", 0.5, 0)},
		{"sell without position", domain.OrderRequest{Token: "yes", Side: domain.Sell, Price: 0.5, Size: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.SubmitOrder(ctx, tt.req)
			assert.Error(t, err)
		})
	}
}

func TestVenue_CrossFillsAndUpdatesPositions(t *testing.T) {
	v := paper.NewVenue()
	ctx := context.Background()

	_, err := v.SubmitOrder(ctx, buy("yes", 0.46, 20))
	require.NoError(t, err)

	assert.Empty(t, v.Cross("yes", 0.45, 0.50), "ask above bid")
	assert.Empty(t, v.Cross("no", 0.10, 0.20), "other token")

	trades := v.Cross("yes", 0.44, 0.46)
	require.Len(t, trades, 2)
	assert.Equal(t, domain.TradeMatched, trades[0].Status)
	assert.Equal(t, domain.TradeConfirmed, trades[1].Status)
	assert.Equal(t, trades[0].TradeID, trades[1].TradeID)
	for _, tr := range trades {
		assert.Equal(t, domain.Buy, tr.Side)
		assert.Equal(t, "0xm", tr.MarketID)
		assert.InDelta(t, 0.46, tr.Price, 1e-9)
		assert.InDelta(t, 20, tr.Size, 1e-9)
	}

	pos, err := v.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.InDelta(t, 20, pos[0].Size, 1e-9)
	assert.InDelta(t, 0.46, pos[0].AvgPrice, 1e-9)

	// venta reservada: no se puede vender más de lo disponible
	_, err = v.SubmitOrder(ctx, domain.OrderRequest{Token: "yes", MarketID: "0xm", Side: domain.Sell, Price: 0.55, Size: 15})
	require.NoError(t, err)
	_, err = v.SubmitOrder(ctx, domain.OrderRequest{Token: "yes", MarketID: "0xm", Side: domain.Sell, Price: 0.55, Size: 10})
	assert.ErrorIs(t, err, paper.ErrInsufficientBalance)

	trades = v.Cross("yes", 0.55, 0.60)
	require.Len(t, trades, 2)
	assert.Equal(t, domain.Sell, trades[0].Side)
	assert.Equal(t, domain.TradeMatched, trades[0].Status)

	pos, err = v.GetPositions(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 5, pos[0].Size, 1e-9)
	assert.InDelta(t, 0.46, pos[0].AvgPrice, 1e-9)
}

func TestVenue_MergePositions(t *testing.T) {
	v := paper.NewVenue()
	ctx := context.Background()

	_, err := v.SubmitOrder(ctx, buy("yes", 0.46, 25))
	require.NoError(t, err)
	_, err = v.SubmitOrder(ctx, buy("no", 0.50, 40))
	require.NoError(t, err)
	v.Cross("yes", 0, 0.46)
	v.Cross("no", 0, 0.50)

	_, err = v.MergePositions(ctx, 30, "0xm", false)
	assert.ErrorIs(t, err, paper.ErrInsufficientBalance)

	_, err = v.MergePositions(ctx, 10, "0xother", false)
	assert.Error(t, err)

	res, err := v.MergePositions(ctx, 25, "0xm", false)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.InDelta(t, 25, res.USDCReceived, 1e-9)
	assert.NotEmpty(t, res.TxHash)

	pos, err := v.GetPositions(ctx)
	require.NoError(t, err)
	got := map[string]float64{}
	for _, p := range pos {
		got[p.Token] = p.Size
	}
	assert.InDelta(t, 0, got["yes"], 1e-9)
	assert.InDelta(t, 15, got["no"], 1e-9)
}
