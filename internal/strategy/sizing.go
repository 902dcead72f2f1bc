package strategy

import (
	"math"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// SizeInput es el estado que alimenta al motor de tamaños.
type SizeInput struct {
	Position         float64
	OppositePosition float64
	BidPrice         float64
}

// Sizes son las cantidades propuestas para cada lado.
type Sizes struct {
	Buy  float64
	Sell float64
}

// Size calcula las cantidades de compra y venta.
//
// Acumulación (position < maxSize): compra hasta completar maxSize en pasos de
// tradeSize y vende tradeSize en cuanto position ≥ tradeSize. Un
// AccumulationSellFloor mayor retrasa esas ventas.
// Régimen (position ≥ maxSize): vende tradeSize y sigue comprando mientras la
// exposición combinada con el token opuesto no llegue a 2·maxSize.
func Size(inst domain.Instrument, in SizeInput, p Params) Sizes {
	maxSize := inst.EffectiveMaxSize()
	trade := inst.TradeSize
	pos := in.Position

	var s Sizes
	if pos < maxSize {
		s.Buy = math.Min(trade, maxSize-pos)
		floor := inst.AccumulationSellFloor
		if floor <= 0 {
			floor = trade
		}
		if pos >= floor && pos >= trade {
			s.Sell = math.Min(pos, trade)
		}
	} else {
		s.Sell = math.Min(pos, trade)
		if pos+in.OppositePosition < 2*maxSize {
			s.Buy = trade
		}
	}

	if inst.MinSize > 0 && s.Buy > p.MinSizeRoundRatio*inst.MinSize && s.Buy < inst.MinSize {
		s.Buy = inst.MinSize
	}

	if inst.Multiplier > 1 && in.BidPrice > 0 && in.BidPrice < p.LowPriceCutoff {
		s.Buy *= float64(inst.Multiplier)
	}

	if p.AbsoluteMaxPosition > 0 {
		s.Buy = math.Max(0, math.Min(s.Buy, p.AbsoluteMaxPosition-pos))
	}
	s.Sell = math.Max(0, s.Sell)
	return s
}
