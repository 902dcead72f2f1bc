package domain

import (
	"math"
	"strconv"
)

// OrderBook representa el libro de órdenes de un instrumento, siempre desde
// la perspectiva del token "yes".
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint devuelve el punto medio entre best bid y best ask.
func (ob OrderBook) Midpoint() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread devuelve el spread del book (ask - bid).
func (ob OrderBook) Spread() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// Depth es el resultado del análisis de profundidad para un token.
// Los precios ya están expresados en el espacio de precio del token analizado.
type Depth struct {
	HasBid bool
	HasAsk bool

	BestBid       float64
	BestBidSize   float64
	SecondBid     float64
	SecondBidSize float64
	TopBid        float64

	BestAsk       float64
	BestAskSize   float64
	SecondAsk     float64
	SecondAskSize float64
	TopAsk        float64

	// Liquidez sumada dentro de la banda alrededor del midpoint.
	BidBand float64
	AskBand float64
}

// Spread devuelve bestAsk - bestBid, o 0 si falta un lado.
func (d Depth) Spread() float64 {
	if !d.HasBid || !d.HasAsk {
		return 0
	}
	return d.BestAsk - d.BestBid
}

// Sentiment devuelve bidBand/askBand. Sin liquidez ask el ratio no se puede
// calcular y se devuelve ok=false.
func (d Depth) Sentiment() (float64, bool) {
	if d.AskBand == 0 {
		return 0, false
	}
	return d.BidBand / d.AskBand, true
}

// Invert pasa la profundidad al espacio del token complementario:
// p → 1-p, bid ↔ ask (con sus tamaños) y bandas intercambiadas.
func (d Depth) Invert() Depth {
	out := Depth{
		HasBid:        d.HasAsk,
		HasAsk:        d.HasBid,
		BestBidSize:   d.BestAskSize,
		SecondBidSize: d.SecondAskSize,
		BestAskSize:   d.BestBidSize,
		SecondAskSize: d.SecondBidSize,
		BidBand:       d.AskBand,
		AskBand:       d.BidBand,
	}
	if d.HasAsk {
		out.BestBid = Complement(d.BestAsk)
	}
	if d.SecondAsk > 0 {
		out.SecondBid = Complement(d.SecondAsk)
	}
	if d.TopAsk > 0 {
		out.TopBid = Complement(d.TopAsk)
	}
	if d.HasBid {
		out.BestAsk = Complement(d.BestBid)
	}
	if d.SecondBid > 0 {
		out.SecondAsk = Complement(d.SecondBid)
	}
	if d.TopBid > 0 {
		out.TopAsk = Complement(d.TopBid)
	}
	return out
}

// Complement devuelve 1-p redondeado a 6 decimales para no arrastrar ruido
// de coma flotante entre tokens.
func Complement(p float64) float64 {
	return math.Round((1-p)*1e6) / 1e6
}

// ParsePrice convierte un string de precio a float64.
// Usado en el mapping de la API.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
