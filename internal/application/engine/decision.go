package engine

import (
	"context"
	"log/slog"
	"math"

	"github.com/alejandrodnm/polymaker/internal/domain"
	"github.com/alejandrodnm/polymaker/internal/strategy"
)

// Evaluate runs one decision pass for the instrument: both tokens go through
// depth → price → size → risk → order lifecycle, then the merge optimizer.
// The scheduler guarantees it never runs concurrently for the same instrument.
func (e *Engine) Evaluate(ctx context.Context, marketID string) {
	inst, ok := e.instrument(marketID)
	if !ok {
		return
	}
	riskOff := e.riskOffActive(ctx, inst)
	for _, token := range inst.Tokens() {
		if ctx.Err() != nil {
			return
		}
		e.quoteToken(ctx, inst, token, riskOff)
	}
	e.tryMerge(ctx, inst)
}

func (e *Engine) quoteToken(ctx context.Context, inst domain.Instrument, token string, riskOff bool) {
	p := e.cfg.Params

	depth, err := e.books.Analyze(token, inst.MinSize, e.cfg.BandPct)
	if err != nil {
		slog.Debug("engine: no depth yet", "market", inst.MarketID, "token", token, "err", err)
		return
	}

	view := e.ledger.View(token)
	opposite := e.ledger.Position(inst.Complement(token))

	quote, priced := strategy.Price(depth, inst.TickSize, p)
	sizes := strategy.Size(inst, strategy.SizeInput{
		Position:         view.Position.Size,
		OppositePosition: opposite.Size,
		BidPrice:         quote.Bid,
	}, p)
	verdict := strategy.EvaluateBuy(strategy.RiskInput{
		Instrument:       inst,
		Position:         view.Position.Size,
		OppositePosition: opposite.Size,
		Buy:              sizes.Buy,
		Depth:            depth,
		RiskOff:          riskOff,
		HasRestingBuy:    view.Buy.State == domain.OrderResting,
		RestingBuyPrice:  view.Buy.Price,
	}, p)

	// mientras dure la condición de cancelación no se recoloca nada del token
	if verdict.CancelAll {
		if view.Buy.State != domain.OrderAbsent || view.Sell.State != domain.OrderAbsent {
			slog.Info("engine: risk cancel", "market", inst.MarketID, "token", token, "reasons", verdict.Reasons)
			e.cancelToken(ctx, token)
		}
		return
	}

	buy := e.ledger.Order(token, domain.Buy)
	if priced && verdict.AllowBuy && sizes.Buy >= inst.MinSize {
		e.ensureOrder(ctx, inst, token, domain.Buy, quote.Bid, sizes.Buy, buy)
	} else {
		if !verdict.AllowBuy && buy.State == domain.OrderResting {
			slog.Debug("engine: buy withheld", "market", inst.MarketID, "token", token, "reasons", verdict.Reasons)
		}
		e.withdraw(ctx, token, domain.Buy, buy)
	}

	sell := e.ledger.Order(token, domain.Sell)
	sellPrice, sellPriced := e.sellPrice(inst, quote, view.Position)
	sellSize := math.Min(sizes.Sell, view.Position.Size)
	if priced && sellPriced && sellSize >= inst.MinSize && sellSize > 0 {
		e.ensureOrder(ctx, inst, token, domain.Sell, sellPrice, sellSize, sell)
	} else {
		e.withdraw(ctx, token, domain.Sell, sell)
	}
}

// sellPrice aplica el take-profit opcional sobre el ask cotizado.
func (e *Engine) sellPrice(inst domain.Instrument, q strategy.Quote, pos domain.Position) (float64, bool) {
	price := q.Ask
	if inst.TakeProfitPct > 0 && pos.AvgPrice > 0 {
		floor := strategy.CeilToTick(pos.AvgPrice*(1+inst.TakeProfitPct), inst.TickSize)
		price = math.Max(price, floor)
	}
	if price <= 0 || price >= 1 {
		return 0, false
	}
	return price, true
}

// riskOffActive consulta el registro de risk-off. Un error de lectura a mitad
// de ejecución se trata como risk-off activo.
func (e *Engine) riskOffActive(ctx context.Context, inst domain.Instrument) bool {
	if e.deps.RiskOff == nil {
		return false
	}
	rec, found, err := e.deps.RiskOff.RiskOff(ctx, inst.MarketID)
	if err != nil {
		slog.Warn("engine: risk-off lookup failed, withholding buys", "market", inst.MarketID, "err", err)
		return true
	}
	return strategy.RiskOffActive(rec, found, e.now())
}
