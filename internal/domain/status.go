package domain

// TokenStatus es una fila del reporte de estado del engine.
type TokenStatus struct {
	MarketID string
	Name     string
	Token    string
	Position Position
	Buy      RestingOrder
	Sell     RestingOrder
	InFlight int
}
