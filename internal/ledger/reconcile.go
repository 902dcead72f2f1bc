package ledger

import (
	"log/slog"
	"time"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// ReconcileStats resume una pasada de reconciliación.
type ReconcileStats struct {
	SizesUpdated  int
	SizesSkipped  int
	OrdersRebuilt int
	OrdersSkipped int
}

// Reconcile aplica el estado de referencia del venue para los tokens dados.
//
// AvgPrice se refresca siempre que el venue informe el token. Size solo se
// sobreescribe si el token no tiene nada en vuelo y no se tocó localmente en
// la ventana reciente; un token ausente en el venue cuenta como tamaño 0.
// Las órdenes de un (token, side) con algo en vuelo, o modificadas localmente
// después de fetchedAt (inicio de la lectura del venue), no se reconstruyen:
// la foto del venue es anterior a ese cambio.
func (l *Ledger) Reconcile(positions []domain.VenuePosition, orders []domain.OpenOrder, tokens []string, fetchedAt time.Time) ReconcileStats {
	var stats ReconcileStats

	byToken := make(map[string]domain.VenuePosition, len(positions))
	for _, p := range positions {
		byToken[p.Token] = p
	}
	byKey := make(map[Key][]domain.OpenOrder)
	for _, o := range orders {
		k := Key{o.Token, o.Side}
		byKey[k] = append(byKey[k], o)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.inflight.Purge(now)

	for _, token := range tokens {
		vp, reported := byToken[token]
		cur := l.positions[token]
		cur.Token = token

		last := l.lastUpdate[token]
		if l.inflight.TokenEmpty(token) && now.Sub(last) >= l.recent && !last.After(fetchedAt) {
			if cur.Size != vp.Size {
				stats.SizesUpdated++
			}
			cur.Size = vp.Size
			cur.AvgPrice = vp.AvgPrice
		} else {
			stats.SizesSkipped++
			if reported {
				cur.AvgPrice = vp.AvgPrice
			}
			slog.Debug("ledger: size refresh skipped",
				"token", token,
				"in_flight", l.inflight.Count(token),
				"since_update", now.Sub(last),
			)
		}
		l.setPosition(token, cur)

		for _, side := range []domain.Side{domain.Buy, domain.Sell} {
			k := Key{token, side}
			if !l.inflight.Empty(k) || l.touched[k].After(fetchedAt) {
				stats.OrdersSkipped++
				continue
			}
			open := byKey[k]
			if len(open) == 0 {
				delete(l.orders, k)
				continue
			}
			l.orders[k] = aggregate(k, open, now)
			stats.OrdersRebuilt++
		}
	}
	return stats
}

// aggregate colapsa varias órdenes del venue en la orden lógica del (token, side):
// tamaño total al precio de la orden más grande. Con más de una orden el ID
// queda vacío y cualquier reemplazo cancela por token.
func aggregate(k Key, open []domain.OpenOrder, now time.Time) domain.RestingOrder {
	largest := open[0]
	total := 0.0
	for _, o := range open {
		total += o.Size
		if o.Size > largest.Size {
			largest = o
		}
	}
	ro := domain.RestingOrder{
		Token:   k.Token,
		Side:    k.Side,
		Price:   largest.Price,
		Size:    total,
		State:   domain.OrderResting,
		Updated: now,
	}
	if len(open) == 1 {
		ro.OrderID = largest.OrderID
	}
	return ro
}
