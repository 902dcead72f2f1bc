package ports

import (
	"context"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// BookHandler recibe los eventos del feed de mercado.
type BookHandler interface {
	OnBookSnapshot(ev domain.BookSnapshot)
	OnPriceChange(ev domain.PriceChange)
}

// TradeHandler recibe las confirmaciones de trades y órdenes propias.
type TradeHandler interface {
	OnTrade(ev domain.TradeEvent)
	OnOrderEvent(ev domain.OrderEvent)
}

// FeedSubscriber añade tokens a la suscripción del feed de mercado.
type FeedSubscriber interface {
	Subscribe(ctx context.Context, tokens []string) error
}
