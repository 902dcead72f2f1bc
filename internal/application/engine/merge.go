package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// tryMerge fusiona min(posA, posB) en colateral cuando supera el mínimo.
// No se ejecuta si alguno de los tokens tiene trades en vuelo. Tras un fallo
// el instrumento no reintenta hasta pasado mergeRetryBackoff.
func (e *Engine) tryMerge(ctx context.Context, inst domain.Instrument) {
	if e.deps.Merger == nil {
		return
	}
	amount, ok := e.ledger.MergeAmount(inst.TokenA, inst.TokenB)
	if !ok || amount <= e.cfg.MinMergeSize {
		return
	}

	e.mu.RLock()
	until := e.mergeBackoff[inst.MarketID]
	e.mu.RUnlock()
	if e.now().Before(until) {
		return
	}

	slog.Info("engine: merging", "market", inst.MarketID, "amount", amount)

	cctx, cancel := context.WithTimeout(ctx, e.cfg.MergeTimeout)
	defer cancel()

	res, err := e.deps.Merger.MergePositions(cctx, amount, inst.MarketID, inst.NegRisk)
	if err == nil && !res.Success {
		err = fmt.Errorf("merge not successful: %s", res.Error)
	}
	if res.MarketID == "" {
		res.MarketID = inst.MarketID
	}
	res.Amount = amount
	if err != nil {
		res.Success = false
		if res.Error == "" {
			res.Error = err.Error()
		}
		e.mu.Lock()
		e.mergeBackoff[inst.MarketID] = e.now().Add(mergeRetryBackoff)
		e.mu.Unlock()
		slog.Warn("engine: merge failed", "market", inst.MarketID, "amount", amount, "err", err)
		e.journalMerge(res)
		return
	}

	e.ledger.ApplyMerge(inst.TokenA, inst.TokenB, amount)
	slog.Info("engine: merged", "market", inst.MarketID, "amount", amount, "tx", res.TxHash)
	e.journalMerge(res)
}

func (e *Engine) journalMerge(res domain.MergeResult) {
	if e.deps.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := e.deps.Journal.RecordMerge(ctx, res); err != nil {
		slog.Warn("engine: journal merge failed", "market", res.MarketID, "err", err)
	}
}
