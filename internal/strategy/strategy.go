// Package strategy contiene las reglas puras de cotización: precio, tamaño,
// gate de riesgo y decisión de reemplazo. No guarda estado ni hace I/O.
package strategy

// Params agrupa los umbrales globales de trading.
type Params struct {
	TakeoverSize         float64 // nivel más fino que esto se iguala en vez de mejorarse
	MinSpread            float64 // spread mínimo observado para comprar
	MaxDeviation         float64 // tolerancia por defecto entre orden en reposo y referencia
	LowPriceCutoff       float64 // por debajo de este bid se aplica el multiplicador
	MinSizeRoundRatio    float64 // buy en (ratio·minSize, minSize) se redondea a minSize
	AbsoluteMaxPosition  float64 // cap duro por token
	MinSentiment         float64 // bidBand/askBand mínimo
	PriceChangeThreshold float64 // reemplazar si el precio cambia más que esto
	SizeChangeThreshold  float64 // reemplazar si el tamaño cambia más que esta fracción
}

// DefaultParams devuelve los umbrales de producción.
func DefaultParams() Params {
	return Params{
		TakeoverSize:         5,
		MinSpread:            0.10,
		MaxDeviation:         0.05,
		LowPriceCutoff:       0.10,
		MinSizeRoundRatio:    0.7,
		AbsoluteMaxPosition:  250,
		MinSentiment:         0,
		PriceChangeThreshold: 0.005,
		SizeChangeThreshold:  0.10,
	}
}

// eps absorbe el ruido de coma flotante en comparaciones de precio.
const eps = 1e-9
