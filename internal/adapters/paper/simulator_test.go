package paper_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polymaker/internal/adapters/paper"
	"github.com/alejandrodnm/polymaker/internal/domain"
)

type recorder struct {
	snapshots int
	changes   int
	trades    []domain.TradeEvent
}

func (r *recorder) OnBookSnapshot(domain.BookSnapshot) { r.snapshots++ }
func (r *recorder) OnPriceChange(domain.PriceChange) { r.changes++ }
func (r *recorder) OnTrade(ev domain.TradeEvent) { r.trades = append(r.trades, ev) }
func (r *recorder) OnOrderEvent(domain.OrderEvent) {}

func TestSimulator_ForwardsAndFills(t *testing.T) {
	v := paper.NewVenue()
	rec := &recorder{}
	sim := paper.NewSimulator(v, rec, rec)

	_, err := v.SubmitOrder(context.Background(), buy("yes", 0.46, 20))
	require.NoError(t, err)

	sim.OnBookSnapshot(domain.BookSnapshot{
		Token: "yes",
		Bids:  []domain.BookEntry{{Price: 0.40, Size: 5}, {Price: 0.45, Size: 5}},
		Asks:  []domain.BookEntry{{Price: 0.60, Size: 5}, {Price: 0.50, Size: 5}, {Price: 0.30, Size: 0}},
	})
	assert.Equal(t, 1, rec.snapshots)
	assert.Empty(t, rec.trades, "best ask .50 does not cross .46")

	// sin top-of-book no se simula nada
	sim.OnPriceChange(domain.PriceChange{Token: "yes", Side: domain.Sell, Price: 0.46, Size: 10})
	assert.Equal(t, 1, rec.changes)
	assert.Empty(t, rec.trades)

	sim.OnPriceChange(domain.PriceChange{Token: "yes", Side: domain.Sell, Price: 0.46, Size: 10, BestBid: 0.45, BestAsk: 0.46})
	require.Len(t, rec.trades, 2)
	assert.Equal(t, "yes", rec.trades[0].Token)
	assert.Equal(t, domain.TradeMatched, rec.trades[0].Status)
	assert.Equal(t, domain.TradeConfirmed, rec.trades[1].Status)
}
