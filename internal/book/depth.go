package book

import (
	"fmt"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// Analyze es el Depth Analyzer. Recorre el libro desde el lado agresivo hacia
// dentro (bids de mayor a menor, asks de menor a mayor): "best" es el primer
// nivel con tamaño ≥ minSize y "second" el siguiente que también lo cumple.
// Top-of-book ignora el tamaño. Las bandas suman la liquidez a bandPct del
// midpoint de top-of-book.
//
// Para el token "no" el resultado se devuelve invertido.
func (s *Store) Analyze(token string, minSize, bandPct float64) (domain.Depth, error) {
	s.mu.RLock()
	ref, b, err := s.lookup(token)
	if err != nil {
		s.mu.RUnlock()
		return domain.Depth{}, fmt.Errorf("book.Analyze: %w", err)
	}
	if !b.ready {
		s.mu.RUnlock()
		return domain.Depth{}, fmt.Errorf("book.Analyze: %w: %s", domain.ErrNoBook, ref.marketID)
	}
	bids := b.bids.sorted(true)
	asks := b.asks.sorted(false)
	s.mu.RUnlock()

	d := analyzeLadders(bids, asks, minSize, bandPct)
	if ref.complement {
		d = d.Invert()
	}
	return d, nil
}

func analyzeLadders(bids, asks []domain.BookEntry, minSize, bandPct float64) domain.Depth {
	var d domain.Depth

	if len(bids) > 0 {
		d.TopBid = bids[0].Price
		d.BestBid, d.BestBidSize, d.SecondBid, d.SecondBidSize, d.HasBid = scan(bids, minSize)
	}
	if len(asks) > 0 {
		d.TopAsk = asks[0].Price
		d.BestAsk, d.BestAskSize, d.SecondAsk, d.SecondAskSize, d.HasAsk = scan(asks, minSize)
	}

	if len(bids) == 0 || len(asks) == 0 {
		return d
	}
	mid := (d.TopBid + d.TopAsk) / 2
	lo, hi := mid*(1-bandPct), mid*(1+bandPct)
	for _, e := range bids {
		if e.Price < lo {
			break
		}
		d.BidBand += e.Size
	}
	for _, e := range asks {
		if e.Price > hi {
			break
		}
		d.AskBand += e.Size
	}
	return d
}

// scan devuelve los dos primeros niveles con tamaño ≥ minSize.
func scan(levels []domain.BookEntry, minSize float64) (best, bestSize, second, secondSize float64, found bool) {
	for _, e := range levels {
		if e.Size < minSize {
			continue
		}
		if !found {
			best, bestSize, found = e.Price, e.Size, true
			continue
		}
		return best, bestSize, e.Price, e.Size, true
	}
	return best, bestSize, 0, 0, found
}
