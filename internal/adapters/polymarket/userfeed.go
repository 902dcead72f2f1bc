package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/polymaker/internal/domain"
	"github.com/alejandrodnm/polymaker/internal/ports"
)

type wsMakerOrder struct {
	AssetID       string    `json:"asset_id"`
	MatchedAmount numString `json:"matched_amount"`
	OrderID       string    `json:"order_id"`
	Owner         string    `json:"owner"`
	Price         numString `json:"price"`
}

// wsUserMessage cubre los eventos trade y order del canal user.
type wsUserMessage struct {
	EventType   string         `json:"event_type"`
	ID          string         `json:"id"`
	AssetID     string         `json:"asset_id"`
	Market      string         `json:"market"`
	Side        string         `json:"side"`
	Price       numString      `json:"price"`
	Size        numString      `json:"size"`
	Status      string         `json:"status"`
	Owner       string         `json:"owner"`
	MakerOrders []wsMakerOrder `json:"maker_orders"`
	Type        string         `json:"type"`
	Timestamp   string         `json:"timestamp"`
}

// UserEvent es un trade o una actualización de orden propia; solo uno de los
// dos campos está presente.
type UserEvent struct {
	Trade *domain.TradeEvent
	Order *domain.OrderEvent
}

// DecodeUserMessage decodifica un frame del canal user. apiKey identifica
// nuestras órdenes: si somos taker el trade se reporta con el lado del
// mensaje; por cada maker_order nuestra se reporta un trade con ID
// "<trade>:<order>". Un maker en el mismo token opera el lado opuesto al
// taker; en el token complementario, el mismo lado.
func DecodeUserMessage(data []byte, apiKey string) ([]UserEvent, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || (data[0] != '{' && data[0] != '[') {
		return nil, nil
	}

	var msgs []wsUserMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("polymarket.DecodeUserMessage: %w", err)
		}
	} else {
		var m wsUserMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("polymarket.DecodeUserMessage: %w", err)
		}
		msgs = []wsUserMessage{m}
	}

	var out []UserEvent
	for _, m := range msgs {
		switch m.EventType {
		case "trade":
			out = append(out, decodeTrade(m, apiKey)...)
		case "order":
			side, _ := domain.ParseSide(m.Side)
			out = append(out, UserEvent{Order: &domain.OrderEvent{
				OrderID: m.ID,
				Token:   m.AssetID,
				Side:    side,
				Type:    domain.OrderEventType(strings.ToUpper(m.Type)),
			}})
		}
	}
	return out, nil
}

func decodeTrade(m wsUserMessage, apiKey string) []UserEvent {
	takerSide, ok := domain.ParseSide(m.Side)
	if !ok {
		return nil
	}
	status := domain.TradeStatus(strings.ToUpper(m.Status))
	ts := parseMillis(m.Timestamp)

	var out []UserEvent
	if m.Owner != "" && m.Owner == apiKey {
		out = append(out, UserEvent{Trade: &domain.TradeEvent{
			TradeID:   m.ID,
			Token:     m.AssetID,
			MarketID:  m.Market,
			Side:      takerSide,
			Price:     float64(m.Price),
			Size:      float64(m.Size),
			Status:    status,
			Timestamp: ts,
		}})
	}
	for _, mo := range m.MakerOrders {
		if mo.Owner == "" || mo.Owner != apiKey {
			continue
		}
		side := takerSide
		if mo.AssetID == m.AssetID {
			side = takerSide.Opposite()
		}
		out = append(out, UserEvent{Trade: &domain.TradeEvent{
			TradeID:   m.ID + ":" + mo.OrderID,
			Token:     mo.AssetID,
			MarketID:  m.Market,
			Side:      side,
			Price:     float64(mo.Price),
			Size:      float64(mo.MatchedAmount),
			Status:    status,
			Timestamp: ts,
		}})
	}
	return out
}

// UserFeed es la suscripción autenticada al canal user: confirmaciones de
// trades y de órdenes propias.
type UserFeed struct {
	ws      *wsConn
	handler ports.TradeHandler
	creds   func(ctx context.Context) (Credentials, error)

	mu     sync.RWMutex
	apiKey string
}

// NewUserFeed crea el feed. creds suele ser AuthClient.Credentials.
func NewUserFeed(url string, creds func(ctx context.Context) (Credentials, error), handler ports.TradeHandler) *UserFeed {
	if url == "" {
		url = defaultWSUserURL
	}
	f := &UserFeed{
		ws:      newWSConn("user", url),
		handler: handler,
		creds:   creds,
	}
	f.ws.onConnect = f.subscribe
	f.ws.onMessage = f.dispatch
	return f
}

// Run mantiene la conexión hasta que ctx se cancela.
func (f *UserFeed) Run(ctx context.Context) error {
	return f.ws.run(ctx)
}

func (f *UserFeed) subscribe() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	creds, err := f.creds(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.apiKey = creds.APIKey
	f.mu.Unlock()

	return f.ws.writeJSON(map[string]any{
		"type":    "user",
		"markets": []string{},
		"auth": map[string]string{
			"apiKey":     creds.APIKey,
			"secret":     creds.Secret,
			"passphrase": creds.Passphrase,
		},
	})
}

func (f *UserFeed) dispatch(msg []byte) {
	f.mu.RLock()
	key := f.apiKey
	f.mu.RUnlock()

	events, err := DecodeUserMessage(msg, key)
	if err != nil {
		slog.Warn("polymarket: user message dropped", "err", err)
		return
	}
	for _, ev := range events {
		switch {
		case ev.Trade != nil:
			f.handler.OnTrade(*ev.Trade)
		case ev.Order != nil:
			f.handler.OnOrderEvent(*ev.Order)
		}
	}
}
