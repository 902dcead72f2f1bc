package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alejandrodnm/polymaker/internal/domain"
	"github.com/alejandrodnm/polymaker/internal/strategy"
)

// ensureOrder deja en el libro una orden (price, size) para el (token, side).
// Si la orden en reposo difiere poco se conserva para no perder prioridad.
// PendingReplace se deja intacto hasta que la reconciliación lo resuelva.
func (e *Engine) ensureOrder(ctx context.Context, inst domain.Instrument, token string, side domain.Side, price, size float64, resting domain.RestingOrder) {
	if resting.State == domain.OrderPendingReplace {
		return
	}
	if !strategy.NeedsReplace(resting, price, size, e.cfg.Params) {
		return
	}
	if resting.State == domain.OrderResting && !e.cancelResting(ctx, token, side, resting) {
		return
	}
	e.submit(ctx, domain.OrderRequest{
		Token:    token,
		MarketID: inst.MarketID,
		Side:     side,
		Price:    price,
		Size:     size,
		NegRisk:  inst.NegRisk,
	})
}

// withdraw cancela la orden en reposo del (token, side) si existe.
func (e *Engine) withdraw(ctx context.Context, token string, side domain.Side, resting domain.RestingOrder) {
	if resting.State != domain.OrderResting {
		return
	}
	e.cancelResting(ctx, token, side, resting)
}

func (e *Engine) submit(ctx context.Context, req domain.OrderRequest) {
	pending := e.ledger.BeginSubmit(req.Token, req.Side)

	cctx, cancel := context.WithTimeout(ctx, e.cfg.VenueTimeout)
	defer cancel()

	id, err := e.deps.Venue.SubmitOrder(cctx, req)
	if err != nil {
		unknown := errors.Is(err, context.DeadlineExceeded) || cctx.Err() != nil
		e.ledger.FailSubmit(req.Token, req.Side, pending, unknown)
		slog.Warn("engine: submit failed, order left pending",
			"token", req.Token, "side", req.Side, "price", req.Price, "size", req.Size,
			"unknown_outcome", unknown, "err", err,
		)
		return
	}
	e.ledger.ConfirmSubmit(req.Token, req.Side, pending, id, req.Price, req.Size)
	slog.Info("engine: order placed",
		"token", req.Token, "side", req.Side, "price", req.Price, "size", req.Size, "order", id,
	)
}

// cancelResting cancela por ID si se conoce; si no, cancela todo el token.
// Devuelve false si la cancelación falló (el lado queda en PendingReplace).
func (e *Engine) cancelResting(ctx context.Context, token string, side domain.Side, resting domain.RestingOrder) bool {
	if resting.OrderID == "" {
		return e.cancelToken(ctx, token)
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.VenueTimeout)
	defer cancel()

	if err := e.deps.Venue.CancelOrder(cctx, resting.OrderID); err != nil {
		e.ledger.MarkPending(token, side)
		slog.Warn("engine: cancel failed, order left pending", "token", token, "side", side, "order", resting.OrderID, "err", err)
		return false
	}
	e.ledger.ClearOrder(token, side)
	return true
}

// cancelToken cancela todas las órdenes del token. Ambos lados quedan Absent,
// o PendingReplace si la llamada falla.
func (e *Engine) cancelToken(ctx context.Context, token string) bool {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.VenueTimeout)
	defer cancel()

	if err := e.deps.Venue.CancelAllForToken(cctx, token); err != nil {
		for _, side := range []domain.Side{domain.Buy, domain.Sell} {
			if e.ledger.Order(token, side).State != domain.OrderAbsent {
				e.ledger.MarkPending(token, side)
			}
		}
		slog.Warn("engine: cancel all failed, orders left pending", "token", token, "err", err)
		return false
	}
	e.ledger.ClearToken(token)
	return true
}
