package ports

import (
	"context"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// MarketSource entrega un snapshot de los instrumentos a operar y sus parámetros.
type MarketSource interface {
	Instruments(ctx context.Context) ([]domain.Instrument, error)
}
