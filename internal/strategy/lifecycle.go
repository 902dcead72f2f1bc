package strategy

import (
	"math"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

// NeedsReplace decide si la orden en reposo debe cancelarse y reenviarse con
// (price, size). Cambios por debajo de los umbrales conservan la prioridad en cola.
func NeedsReplace(resting domain.RestingOrder, price, size float64, p Params) bool {
	if resting.State != domain.OrderResting {
		return true
	}
	priceDiff := math.Abs(resting.Price - price)
	sizeDiff := math.Abs(resting.Size - size)
	return priceDiff > p.PriceChangeThreshold+eps || sizeDiff > p.SizeChangeThreshold*size+eps
}
