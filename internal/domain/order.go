package domain

import "time"

// Side es el lado de una orden.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide acepta "BUY"/"SELL" en cualquier capitalización.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "BUY", "buy", "Buy":
		return Buy, true
	case "SELL", "sell", "Sell":
		return Sell, true
	}
	return "", false
}

// Opposite devuelve el lado contrario.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderState es el estado local de la orden en reposo de un (token, side).
type OrderState int

const (
	OrderAbsent OrderState = iota
	OrderResting
	// OrderPendingReplace: una llamada al venue falló o expiró y no se sabe
	// qué hay realmente en el libro. Solo la reconciliación lo resuelve.
	OrderPendingReplace
)

func (s OrderState) String() string {
	switch s {
	case OrderResting:
		return "resting"
	case OrderPendingReplace:
		return "pending_replace"
	default:
		return "absent"
	}
}

// RestingOrder es la orden lógica que el ledger cree que está en el libro.
type RestingOrder struct {
	Token   string
	Side    Side
	OrderID string // vacío si se desconoce (p.ej. varias órdenes en el venue)
	Price   float64
	Size    float64
	State   OrderState
	Updated time.Time
}

// OrderRequest es una orden límite a enviar al venue.
type OrderRequest struct {
	Token    string
	MarketID string
	Side     Side
	Price    float64
	Size     float64
	NegRisk  bool
}

// OpenOrder es una orden abierta según el venue.
type OpenOrder struct {
	OrderID string
	Token   string
	Side    Side
	Price   float64
	Size    float64 // tamaño restante
}

// VenuePosition es una posición según el venue.
type VenuePosition struct {
	Token    string
	Size     float64
	AvgPrice float64
}
