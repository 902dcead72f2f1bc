package ports

import (
	"context"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// Venue es el venue de ejecución: órdenes límite, cancelaciones y estado de referencia.
// Todas las llamadas pueden fallar transitoriamente; el engine no reintenta inline.
type Venue interface {
	// SubmitOrder firma y envía una orden límite GTC. Devuelve el ID de la orden.
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (string, error)

	// CancelOrder cancela una orden por ID.
	CancelOrder(ctx context.Context, orderID string) error

	// CancelAllForToken cancela todas las órdenes abiertas de un token.
	CancelAllForToken(ctx context.Context, token string) error

	// GetPositions devuelve las posiciones de la cuenta.
	GetPositions(ctx context.Context) ([]domain.VenuePosition, error)

	// GetOpenOrders devuelve todas las órdenes abiertas de la cuenta.
	GetOpenOrders(ctx context.Context) ([]domain.OpenOrder, error)
}

// Merger convierte tokens complementarios en colateral.
type Merger interface {
	// MergePositions fusiona amount pares yes+no del mercado marketID.
	MergePositions(ctx context.Context, amount float64, marketID string, negRisk bool) (domain.MergeResult, error)
}
