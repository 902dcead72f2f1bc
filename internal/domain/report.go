package domain

// MarketReport resume el journal de un instrumento.
type MarketReport struct {
	MarketID     string
	Fills        int
	BoughtSize   float64
	BoughtCost   float64
	SoldSize     float64
	SoldProceeds float64
	Merges       int
	Merged       float64 // USDC.e recibido por merges
	GasPOL       float64
}

// CashFlow es el flujo de caja realizado: ventas + merges - compras.
// No incluye el valor del inventario abierto.
func (r MarketReport) CashFlow() float64 {
	return r.SoldProceeds + r.Merged - r.BoughtCost
}
