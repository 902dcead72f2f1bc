package strategy_test

import (
	"math/rand"
	"testing"

	"github.com/alejandrodnm/polymaker/internal/domain"
	"github.com/alejandrodnm/polymaker/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleDepth() domain.Depth {
	return domain.Depth{
		HasBid: true, HasAsk: true,
		BestBid: 0.45, BestBidSize: 10, TopBid: 0.44,
		BestAsk: 0.55, BestAskSize: 10, TopAsk: 0.56,
	}
}

func TestPrice_ImprovesOneTick(t *testing.T) {
	q, ok := strategy.Price(exampleDepth(), 0.01, strategy.DefaultParams())
	require.True(t, ok)
	assert.InDelta(t, 0.46, q.Bid, 1e-9)
	assert.InDelta(t, 0.54, q.Ask, 1e-9)
}

func TestPrice_TakeoverThinLevel(t *testing.T) {
	d := exampleDepth()
	d.BestBidSize = 3

	q, ok := strategy.Price(d, 0.01, strategy.DefaultParams())
	require.True(t, ok)
	assert.InDelta(t, 0.45, q.Bid, 1e-9)
	assert.InDelta(t, 0.54, q.Ask, 1e-9)
}

func TestPrice_SpreadProtection(t *testing.T) {
	// el bid mejorado tocaría un ask fino en top-of-book → vuelve a topBid
	d := domain.Depth{
		HasBid: true, HasAsk: true,
		BestBid: 0.50, BestBidSize: 10, TopBid: 0.50,
		BestAsk: 0.55, BestAskSize: 10, TopAsk: 0.51,
	}
	q, ok := strategy.Price(d, 0.01, strategy.DefaultParams())
	require.True(t, ok)
	assert.InDelta(t, 0.50, q.Bid, 1e-9)
	assert.InDelta(t, 0.54, q.Ask, 1e-9)
}

func TestPrice_DegenerateResetsToTop(t *testing.T) {
	d := domain.Depth{
		HasBid: true, HasAsk: true,
		BestBid: 0.49, BestBidSize: 10, TopBid: 0.49,
		BestAsk: 0.51, BestAskSize: 10, TopAsk: 0.51,
	}
	q, ok := strategy.Price(d, 0.01, strategy.DefaultParams())
	require.True(t, ok)
	assert.InDelta(t, 0.49, q.Bid, 1e-9)
	assert.InDelta(t, 0.51, q.Ask, 1e-9)
}

func TestPrice_MissingSide(t *testing.T) {
	d := exampleDepth()
	d.HasAsk = false
	_, ok := strategy.Price(d, 0.01, strategy.DefaultParams())
	assert.False(t, ok)
}

func TestPrice_CrossedBookRejected(t *testing.T) {
	d := domain.Depth{
		HasBid: true, HasAsk: true,
		BestBid: 0.50, BestBidSize: 10, TopBid: 0.50,
		BestAsk: 0.50, BestAskSize: 10, TopAsk: 0.50,
	}
	_, ok := strategy.Price(d, 0.01, strategy.DefaultParams())
	assert.False(t, ok)
}

func TestPrice_NeverCrosses(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := strategy.DefaultParams()

	for i := 0; i < 5000; i++ {
		topBid := float64(1+rng.Intn(97)) / 100
		topAsk := topBid + float64(1+rng.Intn(10))/100
		if topAsk >= 1 {
			continue
		}
		bestBid := topBid - float64(rng.Intn(3))/100
		bestAsk := topAsk + float64(rng.Intn(3))/100
		if bestBid <= 0 || bestAsk >= 1 {
			continue
		}
		d := domain.Depth{
			HasBid: true, HasAsk: true,
			BestBid: bestBid, BestBidSize: float64(rng.Intn(20)), TopBid: topBid,
			BestAsk: bestAsk, BestAskSize: float64(rng.Intn(20)), TopAsk: topAsk,
		}
		q, ok := strategy.Price(d, 0.01, p)
		if !ok {
			continue
		}
		require.Less(t, q.Bid, q.Ask, "depth %+v", d)
	}
}

func TestRoundToTick(t *testing.T) {
	assert.InDelta(t, 0.46, strategy.RoundToTick(0.45+0.01, 0.01), 1e-12)
	assert.InDelta(t, 0.123, strategy.RoundToTick(0.1234, 0.001), 1e-12)
	assert.InDelta(t, 0.12, strategy.FloorToTick(0.129, 0.01), 1e-12)
	assert.InDelta(t, 0.13, strategy.CeilToTick(0.121, 0.01), 1e-12)
}
