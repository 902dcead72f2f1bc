package domain

import "math"

// closedEpsilon es el tamaño por debajo del cual una posición se considera cerrada.
const closedEpsilon = 0.01

// Position es el inventario de un token.
// Size es con signo (positivo = long); AvgPrice es el coste medio.
type Position struct {
	Token    string
	Size     float64
	AvgPrice float64
}

// Buy aplica una compra: el coste medio pasa a ser la media ponderada por tamaño.
func (p Position) Buy(price, size float64) Position {
	if size <= 0 {
		return p
	}
	if p.Size <= 0 {
		p.AvgPrice = price
		p.Size += size
		return p.normalize()
	}
	total := p.Size + size
	p.AvgPrice = (p.Size*p.AvgPrice + size*price) / total
	p.Size = total
	return p.normalize()
}

// Sell aplica una venta. Nunca modifica AvgPrice.
func (p Position) Sell(size float64) Position {
	if size <= 0 {
		return p
	}
	p.Size -= size
	return p.normalize()
}

// Closed indica si la posición está efectivamente a cero.
func (p Position) Closed() bool {
	return math.Abs(p.Size) < closedEpsilon
}

func (p Position) normalize() Position {
	if p.Closed() {
		return Position{Token: p.Token}
	}
	return p
}
