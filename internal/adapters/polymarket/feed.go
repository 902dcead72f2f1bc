package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/polymaker/internal/domain"
	"github.com/alejandrodnm/polymaker/internal/ports"
)

// numString acepta números JSON tanto en string ("0.48") como literales.
type numString float64

func (n *numString) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*n = numString(f)
	return nil
}

type wsLevel struct {
	Price numString `json:"price"`
	Size  numString `json:"size"`
}

type wsChange struct {
	AssetID string    `json:"asset_id"`
	Price   numString `json:"price"`
	Size    numString `json:"size"`
	Side    string    `json:"side"`
	BestBid numString `json:"best_bid"`
	BestAsk numString `json:"best_ask"`
}

// wsMarketMessage cubre los eventos del canal market. price_change llega en
// dos formatos: el actual con price_changes[] (asset_id por entrada) y el
// antiguo con asset_id arriba y changes[].
type wsMarketMessage struct {
	EventType    string     `json:"event_type"`
	AssetID      string     `json:"asset_id"`
	Market       string     `json:"market"`
	Bids         []wsLevel  `json:"bids"`
	Asks         []wsLevel  `json:"asks"`
	Buys         []wsLevel  `json:"buys"`
	Sells        []wsLevel  `json:"sells"`
	PriceChanges []wsChange `json:"price_changes"`
	Changes      []wsChange `json:"changes"`
	Timestamp    string     `json:"timestamp"`
}

// MarketEvent es un book o un price_change decodificado; solo uno de los dos
// campos está presente.
type MarketEvent struct {
	Book   *domain.BookSnapshot
	Change *domain.PriceChange
}

// DecodeMarketMessage decodifica un frame del canal market (objeto o array de
// objetos) conservando el orden de los eventos. Los eventos que no son book
// ni price_change se ignoran.
func DecodeMarketMessage(data []byte) ([]MarketEvent, error) {
	var out []MarketEvent
	data = bytes.TrimSpace(data)
	if len(data) == 0 || (data[0] != '{' && data[0] != '[') {
		// PONG y otros frames de texto
		return out, nil
	}

	var msgs []wsMarketMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &msgs); err != nil {
			return out, fmt.Errorf("polymarket.DecodeMarketMessage: %w", err)
		}
	} else {
		var m wsMarketMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return out, fmt.Errorf("polymarket.DecodeMarketMessage: %w", err)
		}
		msgs = []wsMarketMessage{m}
	}

	for _, m := range msgs {
		ts := parseMillis(m.Timestamp)
		switch m.EventType {
		case "book":
			bids, asks := m.Bids, m.Asks
			if len(bids) == 0 && len(asks) == 0 {
				bids, asks = m.Buys, m.Sells
			}
			out = append(out, MarketEvent{Book: &domain.BookSnapshot{
				Token:     m.AssetID,
				Bids:      toEntries(bids),
				Asks:      toEntries(asks),
				Timestamp: ts,
			}})
		case "price_change":
			for _, c := range m.PriceChanges {
				pc := toPriceChange(c, c.AssetID, ts)
				out = append(out, MarketEvent{Change: &pc})
			}
			for _, c := range m.Changes {
				token := c.AssetID
				if token == "" {
					token = m.AssetID
				}
				pc := toPriceChange(c, token, ts)
				out = append(out, MarketEvent{Change: &pc})
			}
		}
	}
	return out, nil
}

func toEntries(levels []wsLevel) []domain.BookEntry {
	out := make([]domain.BookEntry, 0, len(levels))
	for _, l := range levels {
		out = append(out, domain.BookEntry{Price: float64(l.Price), Size: float64(l.Size)})
	}
	return out
}

func toPriceChange(c wsChange, token string, ts time.Time) domain.PriceChange {
	side, _ := domain.ParseSide(c.Side)
	return domain.PriceChange{
		Token:     token,
		Side:      side,
		Price:     float64(c.Price),
		Size:      float64(c.Size),
		BestBid:   float64(c.BestBid),
		BestAsk:   float64(c.BestAsk),
		Timestamp: ts,
	}
}

// parseMillis parsea un timestamp en milisegundos (o segundos) Unix.
func parseMillis(s string) time.Time {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// MarketFeed es la suscripción al canal market: cada book y price_change se
// entrega al handler en el orden de llegada. Implementa ports.FeedSubscriber.
type MarketFeed struct {
	ws      *wsConn
	handler ports.BookHandler

	mu     sync.Mutex
	tokens map[string]struct{}
}

// NewMarketFeed crea el feed. url vacía → producción.
func NewMarketFeed(url string, handler ports.BookHandler) *MarketFeed {
	if url == "" {
		url = defaultWSMarketURL
	}
	f := &MarketFeed{
		ws:      newWSConn("market", url),
		handler: handler,
		tokens:  make(map[string]struct{}),
	}
	f.ws.onConnect = f.subscribeAll
	f.ws.onMessage = f.dispatch
	return f
}

// Run mantiene la conexión hasta que ctx se cancela.
func (f *MarketFeed) Run(ctx context.Context) error {
	return f.ws.run(ctx)
}

// Subscribe añade tokens a la suscripción. Si no hay conexión se envían al
// conectar.
func (f *MarketFeed) Subscribe(_ context.Context, tokens []string) error {
	f.mu.Lock()
	var added []string
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := f.tokens[t]; !ok {
			f.tokens[t] = struct{}{}
			added = append(added, t)
		}
	}
	f.mu.Unlock()

	if len(added) == 0 || !f.ws.connected() {
		return nil
	}
	msg := map[string]any{"assets_ids": added, "operation": "subscribe"}
	if err := f.ws.writeJSON(msg); err != nil {
		return fmt.Errorf("polymarket.MarketFeed.Subscribe: %w", err)
	}
	slog.Info("polymarket: market feed subscribed", "tokens", len(added))
	return nil
}

func (f *MarketFeed) subscribeAll() error {
	f.mu.Lock()
	tokens := make([]string, 0, len(f.tokens))
	for t := range f.tokens {
		tokens = append(tokens, t)
	}
	f.mu.Unlock()

	if len(tokens) == 0 {
		return nil
	}
	return f.ws.writeJSON(map[string]any{"assets_ids": tokens, "type": "market"})
}

func (f *MarketFeed) dispatch(msg []byte) {
	events, err := DecodeMarketMessage(msg)
	if err != nil {
		slog.Warn("polymarket: market message dropped", "err", err)
		return
	}
	for _, ev := range events {
		switch {
		case ev.Book != nil:
			f.handler.OnBookSnapshot(*ev.Book)
		case ev.Change != nil:
			f.handler.OnPriceChange(*ev.Change)
		}
	}
}
