// Package book mantiene los libros de órdenes por instrumento y deriva
// métricas de profundidad a partir de ellos.
//
// Cada instrumento tiene un único libro guardado desde la perspectiva del
// token "yes". Los eventos del token "no" se invierten al aplicarse
// (p → 1-p, bid ↔ ask) y el análisis del token "no" invierte el resultado.
package book

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// tokenRef ubica un token dentro de la store.
type tokenRef struct {
	marketID   string
	complement bool // true si es el token "no"
}

// ladder es un lado del libro: precio (en micro-unidades) → tamaño.
type ladder map[int64]float64

func priceKey(p float64) int64 {
	return int64(math.Round(p * 1e6))
}

func keyPrice(k int64) float64 {
	return float64(k) / 1e6
}

type instrumentBook struct {
	yesToken string
	bids     ladder
	asks     ladder
	ready    bool // recibió al menos un snapshot o cambio
}

// Store es el Order Book Store. Es seguro para uso concurrente.
type Store struct {
	mu     sync.RWMutex
	books  map[string]*instrumentBook // marketID → libro
	tokens map[string]tokenRef        // token → instrumento

	dropped atomic.Int64
}

// NewStore crea una store vacía.
func NewStore() *Store {
	return &Store{
		books:  make(map[string]*instrumentBook),
		tokens: make(map[string]tokenRef),
	}
}

// Register da de alta los tokens del instrumento. Es idempotente y conserva
// el libro existente.
func (s *Store) Register(inst domain.Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[inst.MarketID]; !ok {
		s.books[inst.MarketID] = &instrumentBook{
			yesToken: inst.TokenA,
			bids:     make(ladder),
			asks:     make(ladder),
		}
	}
	s.tokens[inst.TokenA] = tokenRef{marketID: inst.MarketID}
	s.tokens[inst.TokenB] = tokenRef{marketID: inst.MarketID, complement: true}
}

// Unregister elimina el instrumento y su libro.
func (s *Store) Unregister(inst domain.Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, inst.MarketID)
	delete(s.tokens, inst.TokenA)
	delete(s.tokens, inst.TokenB)
}

// MarketOf devuelve el instrumento al que pertenece el token.
func (s *Store) MarketOf(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.tokens[token]
	return ref.marketID, ok
}

// Dropped devuelve cuántos eventos se descartaron por token ausente o desconocido
// o por niveles inválidos.
func (s *Store) Dropped() int64 {
	return s.dropped.Load()
}

// ApplyBookSnapshot reemplaza el libro completo del instrumento del token.
// Devuelve el marketID afectado.
func (s *Store) ApplyBookSnapshot(ev domain.BookSnapshot) (string, error) {
	if err := validateLevels(ev.Bids); err != nil {
		return s.drop("book.ApplyBookSnapshot", ev.Token, err)
	}
	if err := validateLevels(ev.Asks); err != nil {
		return s.drop("book.ApplyBookSnapshot", ev.Token, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ref, b, err := s.lookup(ev.Token)
	if err != nil {
		return s.drop("book.ApplyBookSnapshot", ev.Token, err)
	}

	bids, asks := make(ladder, len(ev.Bids)), make(ladder, len(ev.Asks))
	put := func(l ladder, price, size float64) {
		if size > 0 {
			l[priceKey(price)] = size
		}
	}
	for _, e := range ev.Bids {
		if ref.complement {
			put(asks, domain.Complement(e.Price), e.Size)
		} else {
			put(bids, e.Price, e.Size)
		}
	}
	for _, e := range ev.Asks {
		if ref.complement {
			put(bids, domain.Complement(e.Price), e.Size)
		} else {
			put(asks, e.Price, e.Size)
		}
	}
	b.bids, b.asks, b.ready = bids, asks, true
	return ref.marketID, nil
}

// ApplyPriceChange hace upsert de un nivel, o lo elimina si el tamaño es 0.
// Devuelve el marketID afectado.
func (s *Store) ApplyPriceChange(ev domain.PriceChange) (string, error) {
	if ev.Side != domain.Buy && ev.Side != domain.Sell {
		return s.drop("book.ApplyPriceChange", ev.Token, fmt.Errorf("%w: side %q", domain.ErrInvalidLevel, ev.Side))
	}
	if err := validateLevels([]domain.BookEntry{{Price: ev.Price, Size: ev.Size}}); err != nil {
		return s.drop("book.ApplyPriceChange", ev.Token, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ref, b, err := s.lookup(ev.Token)
	if err != nil {
		return s.drop("book.ApplyPriceChange", ev.Token, err)
	}

	side, price := ev.Side, ev.Price
	if ref.complement {
		side, price = side.Opposite(), domain.Complement(price)
	}
	l := b.bids
	if side == domain.Sell {
		l = b.asks
	}
	k := priceKey(price)
	if ev.Size == 0 {
		delete(l, k)
	} else {
		l[k] = ev.Size
	}
	b.ready = true
	return ref.marketID, nil
}

// Book devuelve una copia ordenada del libro en el espacio "yes".
func (s *Store) Book(marketID string) (domain.OrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[marketID]
	if !ok || !b.ready {
		return domain.OrderBook{}, false
	}
	return domain.OrderBook{
		TokenID: b.yesToken,
		Bids:    b.bids.sorted(true),
		Asks:    b.asks.sorted(false),
	}, true
}

// lookup debe llamarse con s.mu tomado.
func (s *Store) lookup(token string) (tokenRef, *instrumentBook, error) {
	if token == "" {
		return tokenRef{}, nil, domain.ErrMissingToken
	}
	ref, ok := s.tokens[token]
	if !ok {
		return tokenRef{}, nil, fmt.Errorf("%w: %s", domain.ErrUnknownToken, token)
	}
	b, ok := s.books[ref.marketID]
	if !ok {
		return tokenRef{}, nil, fmt.Errorf("%w: %s", domain.ErrUnknownToken, token)
	}
	return ref, b, nil
}

func (s *Store) drop(op, token string, err error) (string, error) {
	n := s.dropped.Add(1)
	slog.Warn("book: event dropped", "op", op, "token", token, "err", err, "dropped_total", n)
	return "", fmt.Errorf("%s: %w", op, err)
}

func validateLevels(levels []domain.BookEntry) error {
	for _, e := range levels {
		if e.Size < 0 || math.IsNaN(e.Size) {
			return fmt.Errorf("%w: size %v at %v", domain.ErrInvalidLevel, e.Size, e.Price)
		}
		if e.Price <= 0 || e.Price >= 1 || math.IsNaN(e.Price) {
			return fmt.Errorf("%w: price %v", domain.ErrInvalidLevel, e.Price)
		}
	}
	return nil
}

func (l ladder) sorted(desc bool) []domain.BookEntry {
	keys := make([]int64, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if desc {
			return keys[i] > keys[j]
		}
		return keys[i] < keys[j]
	})
	out := make([]domain.BookEntry, len(keys))
	for i, k := range keys {
		out[i] = domain.BookEntry{Price: keyPrice(k), Size: l[k]}
	}
	return out
}
