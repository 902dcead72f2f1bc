package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// Quote es un par bid/ask propuesto.
type Quote struct {
	Bid float64
	Ask float64
}

// Price convierte la profundidad en una cotización:
//  1. mejora un tick sobre best bid/ask;
//  2. si el nivel best es más fino que TakeoverSize, lo iguala;
//  3. nunca cruza top-of-book: si bid ≥ topAsk vuelve a topBid, si ask ≤ topBid vuelve a topAsk;
//  4. si bid ≥ ask, ambos vuelven a (topBid, topAsk).
//
// ok=false si falta un lado o la cotización sigue siendo inválida.
func Price(d domain.Depth, tick float64, p Params) (Quote, bool) {
	if !d.HasBid || !d.HasAsk || tick <= 0 {
		return Quote{}, false
	}

	bid := d.BestBid + tick
	ask := d.BestAsk - tick

	if d.BestBidSize < p.TakeoverSize {
		bid = d.BestBid
	}
	if d.BestAskSize < p.TakeoverSize {
		ask = d.BestAsk
	}

	if bid >= d.TopAsk-eps {
		bid = d.TopBid
	}
	if ask <= d.TopBid+eps {
		ask = d.TopAsk
	}

	bid, ask = RoundToTick(bid, tick), RoundToTick(ask, tick)

	if bid >= ask-eps {
		bid, ask = RoundToTick(d.TopBid, tick), RoundToTick(d.TopAsk, tick)
	}

	if bid <= 0 || ask >= 1 || bid >= ask-eps {
		return Quote{}, false
	}
	return Quote{Bid: bid, Ask: ask}, true
}

// RoundToTick redondea price al múltiplo de tick más cercano.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	v := decimal.NewFromFloat(price).Div(t).Round(0).Mul(t)
	f, _ := v.Float64()
	return f
}

// FloorToTick redondea price hacia abajo al múltiplo de tick.
func FloorToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	v := decimal.NewFromFloat(price).Div(t).Floor().Mul(t)
	f, _ := v.Float64()
	return f
}

// CeilToTick redondea price hacia arriba al múltiplo de tick.
func CeilToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	v := decimal.NewFromFloat(price).Div(t).Ceil().Mul(t)
	f, _ := v.Float64()
	return f
}
