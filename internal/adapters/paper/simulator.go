package paper

import (
	"github.com/alejandrodnm/polymaker/internal/domain"
	"github.com/alejandrodnm/polymaker/internal/ports"
)

// Simulator se interpone entre el feed de mercado y el engine: reenvía cada
// evento y después llena las órdenes simuladas que el nuevo libro cruza.
type Simulator struct {
	venue  *Venue
	books  ports.BookHandler
	trades ports.TradeHandler
}

// NewSimulator crea el puente. books y trades suelen ser el mismo engine.
func NewSimulator(venue *Venue, books ports.BookHandler, trades ports.TradeHandler) *Simulator {
	return &Simulator{venue: venue, books: books, trades: trades}
}

// OnBookSnapshot implementa ports.BookHandler.
func (s *Simulator) OnBookSnapshot(ev domain.BookSnapshot) {
	s.books.OnBookSnapshot(ev)
	s.cross(ev.Token, bestPrice(ev.Bids, true), bestPrice(ev.Asks, false))
}

// OnPriceChange implementa ports.BookHandler. Solo cruza cuando el feed
// informa el top-of-book.
func (s *Simulator) OnPriceChange(ev domain.PriceChange) {
	s.books.OnPriceChange(ev)
	if ev.BestBid == 0 && ev.BestAsk == 0 {
		return
	}
	s.cross(ev.Token, ev.BestBid, ev.BestAsk)
}

func (s *Simulator) cross(token string, bid, ask float64) {
	for _, tr := range s.venue.Cross(token, bid, ask) {
		s.trades.OnTrade(tr)
	}
}

// bestPrice devuelve el mejor bid (max) o ask (min) con tamaño > 0; 0 si no hay.
func bestPrice(levels []domain.BookEntry, bids bool) float64 {
	var best float64
	for _, l := range levels {
		if l.Size <= 0 {
			continue
		}
		if best == 0 || (bids && l.Price > best) || (!bids && l.Price < best) {
			best = l.Price
		}
	}
	return best
}
