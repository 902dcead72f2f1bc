package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// Reconcile re-derives positions and resting orders from the venue. Venue
// reads happen without any lock held; the ledger applies them in one step,
// deferring to in-flight trades and to local changes newer than the read.
// Every instrument is re-evaluated afterwards.
func (e *Engine) Reconcile(ctx context.Context) error {
	fetchedAt := e.now()
	cctx, cancel := context.WithTimeout(ctx, e.cfg.VenueTimeout)
	defer cancel()

	positions, err := e.deps.Venue.GetPositions(cctx)
	if err != nil {
		return fmt.Errorf("engine.Reconcile: positions: %w", err)
	}
	orders, err := e.deps.Venue.GetOpenOrders(cctx)
	if err != nil {
		return fmt.Errorf("engine.Reconcile: open orders: %w", err)
	}

	stats := e.ledger.Reconcile(positions, orders, e.trackedTokens(), fetchedAt)
	slog.Debug("engine: reconciled",
		"sizes_updated", stats.SizesUpdated,
		"sizes_skipped", stats.SizesSkipped,
		"orders_rebuilt", stats.OrdersRebuilt,
		"orders_skipped", stats.OrdersSkipped,
	)

	for _, inst := range e.Instruments() {
		e.sched.Trigger(ctx, inst.MarketID)
	}
	return nil
}
