// Package paper simula el venue en memoria para el modo dry-run: las órdenes
// se guardan localmente, se llenan cuando el libro las cruza y los merges
// consumen las posiciones sin tocar la cadena.
package paper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

var (
	// ErrUnknownOrder: la orden no existe o ya no está abierta.
	ErrUnknownOrder = errors.New("paper: unknown order")
	// ErrInsufficientBalance: venta o merge mayor que la posición.
	ErrInsufficientBalance = errors.New("paper: insufficient balance")
)

type order struct {
	id       string
	marketID string
	token    string
	side     domain.Side
	price    float64
	size     float64
}

// Venue implementa ports.Venue y ports.Merger en memoria.
type Venue struct {
	mu        sync.Mutex
	orders    map[string]*order
	positions map[string]domain.Position
	marketOf  map[string]string // token → marketID
	now       func() time.Time
}

// NewVenue crea un venue vacío.
func NewVenue() *Venue {
	return &Venue{
		orders:    make(map[string]*order),
		positions: make(map[string]domain.Position),
		marketOf:  make(map[string]string),
		now:       time.Now,
	}
}

// SubmitOrder implementa ports.Venue.
func (v *Venue) SubmitOrder(_ context.Context, req domain.OrderRequest) (string, error) {
	if req.Token == "" {
		return "", fmt.Errorf("paper.SubmitOrder: %w", domain.ErrMissingToken)
	}
	if req.Price <= 0 || req.Price >= 1 || req.Size <= 0 {
		return "", fmt.Errorf("paper.SubmitOrder: invalid order %.4f x %.2f", req.Price, req.Size)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if req.Side == domain.Sell {
		if avail := v.positions[req.Token].Size - v.reservedLocked(req.Token); avail+1e-9 < req.Size {
			return "", fmt.Errorf("paper.SubmitOrder: sell %.2f of %s with %.2f available: %w",
				req.Size, req.Token, avail, ErrInsufficientBalance)
		}
	}

	o := &order{
		id:       uuid.NewString(),
		marketID: req.MarketID,
		token:    req.Token,
		side:     req.Side,
		price:    req.Price,
		size:     req.Size,
	}
	v.orders[o.id] = o
	if req.MarketID != "" {
		v.marketOf[req.Token] = req.MarketID
	}
	slog.Debug("paper: order placed", "id", o.id, "token", o.token, "side", o.side, "price", o.price, "size", o.size)
	return o.id, nil
}

// CancelOrder implementa ports.Venue.
func (v *Venue) CancelOrder(_ context.Context, orderID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.orders[orderID]; !ok {
		return fmt.Errorf("paper.CancelOrder: %s: %w", orderID, ErrUnknownOrder)
	}
	delete(v.orders, orderID)
	return nil
}

// CancelAllForToken implementa ports.Venue.
func (v *Venue) CancelAllForToken(_ context.Context, token string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, o := range v.orders {
		if o.token == token {
			delete(v.orders, id)
		}
	}
	return nil
}

// GetPositions implementa ports.Venue.
func (v *Venue) GetPositions(_ context.Context) ([]domain.VenuePosition, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.VenuePosition, 0, len(v.positions))
	for token, p := range v.positions {
		out = append(out, domain.VenuePosition{Token: token, Size: p.Size, AvgPrice: p.AvgPrice})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

// GetOpenOrders implementa ports.Venue.
func (v *Venue) GetOpenOrders(_ context.Context) ([]domain.OpenOrder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.OpenOrder, 0, len(v.orders))
	for _, o := range v.orders {
		out = append(out, domain.OpenOrder{OrderID: o.id, Token: o.token, Side: o.side, Price: o.price, Size: o.size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

// Cross llena las órdenes del token que el top-of-book cruza: compras con
// precio >= bestAsk y ventas con precio <= bestBid. Un precio 0 significa
// lado vacío. Los fills se ejecutan al precio de la orden y cada uno sale como
// MATCHED seguido de CONFIRMED con el mismo TradeID, igual que en el feed real.
func (v *Venue) Cross(token string, bestBid, bestAsk float64) []domain.TradeEvent {
	v.mu.Lock()
	defer v.mu.Unlock()

	var filled []*order
	for _, o := range v.orders {
		if o.token != token {
			continue
		}
		crossed := (o.side == domain.Buy && bestAsk > 0 && o.price >= bestAsk) ||
			(o.side == domain.Sell && bestBid > 0 && o.price <= bestBid)
		if crossed {
			filled = append(filled, o)
		}
	}
	sort.Slice(filled, func(i, j int) bool { return filled[i].id < filled[j].id })

	now := v.now().UTC()
	trades := make([]domain.TradeEvent, 0, 2*len(filled))
	for _, o := range filled {
		delete(v.orders, o.id)
		p := v.positions[token]
		p.Token = token
		if o.side == domain.Buy {
			p = p.Buy(o.price, o.size)
		} else {
			p = p.Sell(o.size)
		}
		v.positions[token] = p

		matched := domain.TradeEvent{
			TradeID:   uuid.NewString(),
			Token:     token,
			MarketID:  o.marketID,
			Side:      o.side,
			Price:     o.price,
			Size:      o.size,
			Status:    domain.TradeMatched,
			Timestamp: now,
		}
		confirmed := matched
		confirmed.Status = domain.TradeConfirmed
		trades = append(trades, matched, confirmed)
		slog.Info("paper: order filled", "id", o.id, "token", token, "side", o.side, "price", o.price, "size", o.size)
	}
	return trades
}

// MergePositions implementa ports.Merger: resta amount de ambos tokens del
// mercado y lo acredita como USDC.
func (v *Venue) MergePositions(_ context.Context, amount float64, marketID string, _ bool) (domain.MergeResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	res := domain.MergeResult{MarketID: marketID, Amount: amount, ExecutedAt: v.now().UTC()}

	var tokens []string
	for token, m := range v.marketOf {
		if m == marketID {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) != 2 {
		err := fmt.Errorf("paper.MergePositions: market %s has %d known tokens", marketID, len(tokens))
		res.Error = err.Error()
		return res, err
	}
	for _, t := range tokens {
		if v.positions[t].Size+1e-9 < amount {
			err := fmt.Errorf("paper.MergePositions: %s holds %.2f < %.2f: %w", t, v.positions[t].Size, amount, ErrInsufficientBalance)
			res.Error = err.Error()
			return res, err
		}
	}
	for _, t := range tokens {
		v.positions[t] = v.positions[t].Sell(amount)
	}

	res.Success = true
	res.USDCReceived = amount
	res.TxHash = "paper-" + uuid.NewString()
	slog.Info("paper: merged", "market", marketID, "amount", amount)
	return res, nil
}

// reservedLocked es el tamaño ya comprometido en ventas abiertas del token.
func (v *Venue) reservedLocked(token string) float64 {
	var total float64
	for _, o := range v.orders {
		if o.token == token && o.side == domain.Sell {
			total += o.size
		}
	}
	return total
}
