package domain

import "time"

// BookSnapshot reemplaza por completo el libro del token.
type BookSnapshot struct {
	Token     string
	Bids      []BookEntry
	Asks      []BookEntry
	Timestamp time.Time
}

// PriceChange actualiza un nivel del libro. Size 0 elimina el nivel.
type PriceChange struct {
	Token string
	Side  Side
	Price float64
	Size  float64
	// Top-of-book informado por el feed después del cambio; 0 si no viene.
	BestBid   float64
	BestAsk   float64
	Timestamp time.Time
}

// TradeStatus es el estado de un trade propio según el venue.
type TradeStatus string

const (
	TradeMatched   TradeStatus = "MATCHED"
	TradeMined     TradeStatus = "MINED"
	TradeConfirmed TradeStatus = "CONFIRMED"
	TradeRetrying  TradeStatus = "RETRYING"
	TradeFailed    TradeStatus = "FAILED"
)

// TradeEvent es una confirmación de trade propio.
type TradeEvent struct {
	TradeID   string
	Token     string
	MarketID  string
	Side      Side
	Price     float64
	Size      float64
	Status    TradeStatus
	Timestamp time.Time
}

// OrderEventType clasifica las actualizaciones de órdenes propias.
type OrderEventType string

const (
	OrderPlacement    OrderEventType = "PLACEMENT"
	OrderUpdate       OrderEventType = "UPDATE"
	OrderCancellation OrderEventType = "CANCELLATION"
)

// OrderEvent es una actualización de una orden propia.
type OrderEvent struct {
	OrderID string
	Token   string
	Side    Side
	Type    OrderEventType
}

// Fill es un trade propio aplicado al ledger, tal como se guarda en el journal.
type Fill struct {
	TradeID    string
	MarketID   string
	Token      string
	Side       Side
	Price      float64
	Size       float64
	ExecutedAt time.Time
}
