package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// RiskInput es lo que el gate necesita para evaluar un token.
type RiskInput struct {
	Instrument       domain.Instrument
	Position         float64
	OppositePosition float64
	Buy              float64
	Depth            domain.Depth
	RiskOff          bool

	// Orden de compra en reposo, si hay.
	HasRestingBuy   bool
	RestingBuyPrice float64
}

// Verdict es el resultado del gate.
type Verdict struct {
	// AllowBuy: se puede colocar o mantener una compra.
	AllowBuy bool
	// CancelAll: hay que cancelar todas las órdenes del token.
	CancelAll bool
	// Reasons describe cada condición violada.
	Reasons []string
}

// EvaluateBuy aplica el gate de riesgo. Volatilidad, desviación, spread y
// sentimiento fuerzan la cancelación de todo el token; el resto solo retiene
// la compra.
func EvaluateBuy(in RiskInput, p Params) Verdict {
	v := Verdict{AllowBuy: true}
	withhold := func(reason string) {
		v.AllowBuy = false
		v.Reasons = append(v.Reasons, reason)
	}
	cancel := func(reason string) {
		v.CancelAll = true
		withhold(reason)
	}

	inst := in.Instrument
	maxSize := inst.EffectiveMaxSize()

	if in.Position >= maxSize {
		withhold(fmt.Sprintf("position %.2f >= max %.2f", in.Position, maxSize))
	}
	if p.AbsoluteMaxPosition > 0 && in.Position >= p.AbsoluteMaxPosition {
		withhold(fmt.Sprintf("position %.2f >= hard cap %.0f", in.Position, p.AbsoluteMaxPosition))
	}
	if in.Buy <= 0 {
		withhold("nothing to buy")
	}
	if in.RiskOff {
		withhold("risk-off active")
	}
	if in.OppositePosition > inst.MinSize {
		withhold(fmt.Sprintf("opposite position %.2f > min size %.2f", in.OppositePosition, inst.MinSize))
	}

	if inst.VolatilityThreshold > 0 && inst.Volatility3h > inst.VolatilityThreshold {
		cancel(fmt.Sprintf("volatility %.4f > %.4f", inst.Volatility3h, inst.VolatilityThreshold))
	}
	if in.HasRestingBuy && in.Depth.HasBid {
		tol := inst.DeviationTolerance
		if tol <= 0 {
			tol = p.MaxDeviation
		}
		if dev := math.Abs(in.RestingBuyPrice - in.Depth.BestBid); dev >= tol-eps {
			cancel(fmt.Sprintf("resting buy %.4f deviates %.4f from reference %.4f", in.RestingBuyPrice, dev, in.Depth.BestBid))
		}
	}
	if spread := in.Depth.Spread(); !in.Depth.HasBid || !in.Depth.HasAsk || spread < p.MinSpread-eps {
		cancel(fmt.Sprintf("spread %.4f < %.2f", spread, p.MinSpread))
	}
	if ratio, ok := in.Depth.Sentiment(); ok && ratio < p.MinSentiment {
		cancel(fmt.Sprintf("sentiment %.4f < %.2f", ratio, p.MinSentiment))
	}
	return v
}

// RiskOffActive indica si el registro suprime compras en now.
func RiskOffActive(rec domain.RiskOffRecord, found bool, now time.Time) bool {
	return found && rec.Active(now)
}
