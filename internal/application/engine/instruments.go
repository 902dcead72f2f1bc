package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// ApplyInstruments replaces the instrument snapshot. New instruments are
// registered with the book store; removed ones get their resting orders
// cancelled and their local state dropped. Invalid entries are skipped.
// Returns the tokens that were not tracked before.
func (e *Engine) ApplyInstruments(ctx context.Context, insts []domain.Instrument) []string {
	next := make(map[string]domain.Instrument, len(insts))
	for _, inst := range insts {
		if err := validateInstrument(inst); err != nil {
			slog.Warn("engine: instrument skipped", "market", inst.MarketID, "err", err)
			continue
		}
		next[inst.MarketID] = inst
	}

	e.mu.Lock()
	prev := e.instruments
	e.instruments = next
	e.mu.Unlock()

	var added []string
	for id, inst := range next {
		old, existed := prev[id]
		if existed && old.TokenA == inst.TokenA && old.TokenB == inst.TokenB {
			continue
		}
		if existed {
			e.retire(ctx, old)
		}
		e.books.Register(inst)
		added = append(added, inst.TokenA, inst.TokenB)
		slog.Info("engine: instrument added", "market", id, "name", inst.Name)
	}
	for id, old := range prev {
		if _, ok := next[id]; ok {
			continue
		}
		e.retire(ctx, old)
		slog.Info("engine: instrument removed", "market", id, "name", old.Name)
	}
	return added
}

// retire cancela las órdenes del instrumento y olvida su estado local.
func (e *Engine) retire(ctx context.Context, inst domain.Instrument) {
	for _, token := range inst.Tokens() {
		cctx, cancel := context.WithTimeout(ctx, e.cfg.VenueTimeout)
		if err := e.deps.Venue.CancelAllForToken(cctx, token); err != nil {
			slog.Warn("engine: cancel on removal failed", "market", inst.MarketID, "token", token, "err", err)
		}
		cancel()
	}
	e.books.Unregister(inst)
	e.ledger.Forget(inst.TokenA, inst.TokenB)
	e.sched.Forget(inst.MarketID)
}

func (e *Engine) refreshInstruments(ctx context.Context) error {
	insts, err := e.deps.Source.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("engine.refreshInstruments: %w", err)
	}
	added := e.ApplyInstruments(ctx, insts)
	if len(added) > 0 && e.deps.Feed != nil {
		if err := e.deps.Feed.Subscribe(ctx, added); err != nil {
			return fmt.Errorf("engine.refreshInstruments: subscribe: %w", err)
		}
	}
	return nil
}

func validateInstrument(inst domain.Instrument) error {
	switch {
	case inst.MarketID == "":
		return fmt.Errorf("missing market id")
	case inst.TokenA == "" || inst.TokenB == "":
		return fmt.Errorf("%w: both tokens are required", domain.ErrMissingToken)
	case inst.TokenA == inst.TokenB:
		return fmt.Errorf("tokens must differ")
	case inst.TickSize <= 0 || inst.TickSize >= 1:
		return fmt.Errorf("invalid tick size %v", inst.TickSize)
	case inst.TradeSize <= 0:
		return fmt.Errorf("invalid trade size %v", inst.TradeSize)
	}
	return nil
}
