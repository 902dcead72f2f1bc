// Package ledger guarda posiciones, órdenes en reposo y trades en vuelo.
//
// Todo el estado vive detrás de un único mutex: decisiones, confirmaciones
// de trades, merges y reconciliación observan posiciones y el tracker de
// trades en vuelo en el mismo punto de serialización. Ningún método hace I/O
// con el lock tomado.
package ledger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

const (
	// DefaultStaleAfter es la ventana tras la cual una entrada en vuelo se purga.
	DefaultStaleAfter = 15 * time.Second
	// DefaultRecentWindow protege el tamaño de una posición tocada localmente.
	DefaultRecentWindow = 5 * time.Second
)

// Ledger es el Position & Order Ledger.
type Ledger struct {
	mu         sync.Mutex
	positions  map[string]domain.Position
	orders     map[Key]domain.RestingOrder
	inflight   *InFlight
	lastUpdate map[string]time.Time
	touched    map[Key]time.Time
	recent     time.Duration
	now        func() time.Time
}

// Option configura el Ledger.
type Option func(*Ledger)

// WithClock sustituye el reloj; usado en tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New crea un Ledger. Valores ≤ 0 usan los defaults.
func New(staleAfter, recentWindow time.Duration, opts ...Option) *Ledger {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if recentWindow <= 0 {
		recentWindow = DefaultRecentWindow
	}
	l := &Ledger{
		positions:  make(map[string]domain.Position),
		orders:     make(map[Key]domain.RestingOrder),
		inflight:   NewInFlight(staleAfter),
		lastUpdate: make(map[string]time.Time),
		touched:    make(map[Key]time.Time),
		recent:     recentWindow,
		now:        time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Position devuelve la posición del token (cero si no existe).
func (l *Ledger) Position(token string) domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.positions[token]
	p.Token = token
	return p
}

// Order devuelve la orden en reposo del (token, side); State Absent si no hay.
func (l *Ledger) Order(token string, side domain.Side) domain.RestingOrder {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order(Key{token, side})
}

func (l *Ledger) order(k Key) domain.RestingOrder {
	o, ok := l.orders[k]
	if !ok {
		return domain.RestingOrder{Token: k.Token, Side: k.Side, State: domain.OrderAbsent}
	}
	return o
}

// BeginSubmit registra un ID pendiente en vuelo antes de llamar al venue.
func (l *Ledger) BeginSubmit(token string, side domain.Side) string {
	id := "pending-" + uuid.NewString()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inflight.Add(Key{token, side}, id, l.now())
	return id
}

// ConfirmSubmit cambia el ID pendiente por el del venue y marca la orden en reposo.
// La entrada sigue en vuelo hasta que llega la confirmación de colocación o se purga.
func (l *Ledger) ConfirmSubmit(token string, side domain.Side, pendingID, orderID string, price, size float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := Key{token, side}
	if orderID != "" {
		l.inflight.Replace(k, pendingID, orderID)
	}
	l.orders[k] = domain.RestingOrder{
		Token:   token,
		Side:    side,
		OrderID: orderID,
		Price:   price,
		Size:    size,
		State:   domain.OrderResting,
		Updated: l.now(),
	}
	l.touched[k] = l.now()
}

// FailSubmit deja el (token, side) en PendingReplace. Si el resultado es
// desconocido (timeout) el ID pendiente queda en vuelo hasta purgarse; si el
// venue rechazó la orden se libera ya.
func (l *Ledger) FailSubmit(token string, side domain.Side, pendingID string, unknown bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := Key{token, side}
	if !unknown {
		l.inflight.Resolve(k, pendingID)
	}
	l.markPending(k)
}

// MarkPending deja el (token, side) en PendingReplace hasta la próxima reconciliación.
func (l *Ledger) MarkPending(token string, side domain.Side) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markPending(Key{token, side})
}

func (l *Ledger) markPending(k Key) {
	o := l.order(k)
	o.State = domain.OrderPendingReplace
	o.Updated = l.now()
	l.orders[k] = o
	l.touched[k] = o.Updated
}

// ClearOrder marca el (token, side) como Absent.
func (l *Ledger) ClearOrder(token string, side domain.Side) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearOrder(Key{token, side})
}

// ClearToken marca ambos lados del token como Absent.
func (l *Ledger) ClearToken(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearOrder(Key{token, domain.Buy})
	l.clearOrder(Key{token, domain.Sell})
}

func (l *Ledger) clearOrder(k Key) {
	delete(l.orders, k)
	l.touched[k] = l.now()
}

// ApplyFill aplica un fill propio a la posición y a la orden en reposo del lado.
func (l *Ledger) ApplyFill(token string, side domain.Side, price, size float64) domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyFill(token, side, price, size)
}

func (l *Ledger) applyFill(token string, side domain.Side, price, size float64) domain.Position {
	p := l.positions[token]
	p.Token = token
	if side == domain.Buy {
		p = p.Buy(price, size)
	} else {
		p = p.Sell(size)
	}
	l.setPosition(token, p)
	l.lastUpdate[token] = l.now()

	k := Key{token, side}
	if o, ok := l.orders[k]; ok && o.State == domain.OrderResting {
		o.Size -= size
		if o.Size <= 0 {
			l.clearOrder(k)
		} else {
			l.orders[k] = o
			l.touched[k] = l.now()
		}
	}
	return p
}

func (l *Ledger) setPosition(token string, p domain.Position) {
	if p.Closed() {
		delete(l.positions, token)
		return
	}
	l.positions[token] = p
}

// ApplyTrade procesa una confirmación de trade propio. MATCHED registra el
// trade en vuelo y aplica el fill; CONFIRMED y FAILED lo liberan.
// Devuelve true si se aplicó un fill.
func (l *Ledger) ApplyTrade(ev domain.TradeEvent) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := Key{ev.Token, ev.Side}
	switch ev.Status {
	case domain.TradeMatched:
		if set := l.inflight.entries[k]; set != nil {
			if _, seen := set[ev.TradeID]; seen {
				return false
			}
		}
		l.inflight.Add(k, ev.TradeID, l.now())
		l.applyFill(ev.Token, ev.Side, ev.Price, ev.Size)
		return true
	case domain.TradeConfirmed, domain.TradeFailed:
		if !l.inflight.Resolve(k, ev.TradeID) {
			l.inflight.ResolveAny(ev.TradeID)
		}
		if ev.Status == domain.TradeFailed {
			slog.Warn("ledger: trade failed, waiting for reconciliation", "trade", ev.TradeID, "token", ev.Token)
		}
	}
	return false
}

// ApplyOrderEvent libera órdenes en vuelo al recibir su colocación o
// cancelación y limpia la orden local cancelada.
func (l *Ledger) ApplyOrderEvent(ev domain.OrderEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch ev.Type {
	case domain.OrderPlacement:
		l.inflight.ResolveAny(ev.OrderID)
	case domain.OrderCancellation:
		l.inflight.ResolveAny(ev.OrderID)
		for k, o := range l.orders {
			if o.OrderID != "" && o.OrderID == ev.OrderID {
				l.clearOrder(k)
			}
		}
	}
}

// MergeAmount devuelve min(posA, posB) si ambas posiciones son positivas y
// ninguno de los dos tokens tiene nada en vuelo.
func (l *Ledger) MergeAmount(tokenA, tokenB string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inflight.Purge(l.now())
	if !l.inflight.TokenEmpty(tokenA) || !l.inflight.TokenEmpty(tokenB) {
		return 0, false
	}
	a, b := l.positions[tokenA].Size, l.positions[tokenB].Size
	if a <= 0 || b <= 0 {
		return 0, false
	}
	return min(a, b), true
}

// ApplyMerge descuenta amount de ambas posiciones como ventas.
func (l *Ledger) ApplyMerge(tokenA, tokenB string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, token := range []string{tokenA, tokenB} {
		p := l.positions[token]
		p.Token = token
		l.setPosition(token, p.Sell(amount))
		l.lastUpdate[token] = now
	}
}

// PurgeStale elimina entradas en vuelo más viejas que la ventana.
func (l *Ledger) PurgeStale() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight.Purge(l.now())
}

// InFlightEmpty indica si el token no tiene nada en vuelo en ningún lado.
func (l *Ledger) InFlightEmpty(token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inflight.Purge(l.now())
	return l.inflight.TokenEmpty(token)
}

// View es una foto del estado de un token.
type View struct {
	Position domain.Position
	Buy      domain.RestingOrder
	Sell     domain.RestingOrder
	InFlight int
}

// View devuelve posición, órdenes y trades en vuelo del token de forma atómica.
func (l *Ledger) View(token string) View {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.positions[token]
	p.Token = token
	return View{
		Position: p,
		Buy:      l.order(Key{token, domain.Buy}),
		Sell:     l.order(Key{token, domain.Sell}),
		InFlight: l.inflight.Count(token),
	}
}

// Forget elimina todo el estado local de los tokens.
func (l *Ledger) Forget(tokens ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range tokens {
		delete(l.positions, t)
		delete(l.lastUpdate, t)
		for _, s := range []domain.Side{domain.Buy, domain.Sell} {
			k := Key{t, s}
			delete(l.orders, k)
			delete(l.touched, k)
			delete(l.inflight.entries, k)
		}
	}
}
