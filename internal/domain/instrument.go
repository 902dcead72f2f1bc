package domain

// Instrument es un mercado binario con dos tokens complementarios.
// TokenA es "yes" y TokenB es "no"; price(A) + price(B) ≈ 1.
type Instrument struct {
	MarketID string // condition ID
	Name     string
	TokenA   string
	TokenB   string

	TickSize  float64
	MinSize   float64
	MaxSize   float64 // 0 → TradeSize
	TradeSize float64
	NegRisk   bool

	Volatility3h        float64
	VolatilityThreshold float64 // 0 → sin límite
	DeviationTolerance  float64 // 0 → default del engine

	Multiplier int // boost de tamaño para precios bajos; 0 → sin boost

	// AccumulationSellFloor es la posición mínima a partir de la cual se
	// coloca una venta mientras aún se acumula (position < maxSize).
	// 0 → tradeSize.
	AccumulationSellFloor float64

	// TakeProfitPct fija un precio mínimo de venta avgPrice·(1+pct). 0 → desactivado.
	TakeProfitPct float64
}

// EffectiveMaxSize devuelve MaxSize o TradeSize si no está configurado.
func (i Instrument) EffectiveMaxSize() float64 {
	if i.MaxSize > 0 {
		return i.MaxSize
	}
	return i.TradeSize
}

// Tokens devuelve ambos tokens del instrumento.
func (i Instrument) Tokens() [2]string {
	return [2]string{i.TokenA, i.TokenB}
}

// Complement devuelve el token opuesto al dado, o "" si no pertenece al instrumento.
func (i Instrument) Complement(token string) string {
	switch token {
	case i.TokenA:
		return i.TokenB
	case i.TokenB:
		return i.TokenA
	}
	return ""
}

// Has indica si el token pertenece al instrumento.
func (i Instrument) Has(token string) bool {
	return token != "" && (token == i.TokenA || token == i.TokenB)
}
