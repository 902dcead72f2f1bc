package polymarket

// trading.go: ejecución real contra el CLOB. Implementa ports.Venue.
// Todas las órdenes son límite GTC; BUY y SELL en shares.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

const (
	ordersPath    = "/data/orders"
	endCursor     = "LTE=" // cursor base64 de última página
	maxOrderPages = 20
)

// clobOrderRequest es el body de POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
	Success  bool   `json:"success"`
}

type clobCancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

type clobOpenOrder struct {
	ID           string `json:"id"`
	AssetID      string `json:"asset_id"`
	Market       string `json:"market"`
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	Status       string `json:"status"`
}

type clobOrdersResponse struct {
	Data       []clobOpenOrder `json:"data"`
	NextCursor string          `json:"next_cursor"`
}

// Venue implementa ports.Venue sobre el CLOB de Polymarket.
type Venue struct {
	auth *AuthClient
}

// NewVenue crea el venue real.
func NewVenue(auth *AuthClient) *Venue {
	return &Venue{auth: auth}
}

// SubmitOrder firma y envía una orden límite GTC. Devuelve el ID del CLOB.
func (v *Venue) SubmitOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	creds, err := v.auth.Credentials(ctx)
	if err != nil {
		return "", fmt.Errorf("polymarket.SubmitOrder: creds: %w", err)
	}

	signed, err := v.auth.buildSignedOrder(req.Token, req.Side, req.Price, req.Size, req.NegRisk)
	if err != nil {
		return "", fmt.Errorf("polymarket.SubmitOrder: sign: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.Token,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          string(req.Side),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     creds.APIKey,
		OrderType: "GTC",
	}

	var resp clobOrderResponse
	if err := v.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return "", fmt.Errorf("polymarket.SubmitOrder: post: %w", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return "", fmt.Errorf("polymarket.SubmitOrder: clob error: %s", resp.ErrorMsg)
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("polymarket.SubmitOrder: empty order id (status %s)", resp.Status)
	}

	slog.Debug("polymarket: order posted",
		"order", resp.OrderID, "token", req.Token, "side", req.Side,
		"price", req.Price, "size", req.Size, "status", resp.Status,
	)
	return resp.OrderID, nil
}

// CancelOrder cancela una orden por ID.
func (v *Venue) CancelOrder(ctx context.Context, orderID string) error {
	var resp clobCancelResponse
	body := map[string]string{"orderID": orderID}
	if err := v.auth.doL2(ctx, http.MethodDelete, "/order", body, &resp); err != nil {
		return fmt.Errorf("polymarket.CancelOrder %s: %w", orderID, err)
	}
	if reason, ok := resp.NotCanceled[orderID]; ok {
		// ya ejecutada o cancelada: no queda nada en el libro
		slog.Debug("polymarket: order not cancelled", "order", orderID, "reason", reason)
	}
	return nil
}

// CancelAllForToken cancela todas las órdenes abiertas del token.
func (v *Venue) CancelAllForToken(ctx context.Context, token string) error {
	var resp clobCancelResponse
	body := map[string]string{"asset_id": token}
	if err := v.auth.doL2(ctx, http.MethodDelete, "/cancel-market-orders", body, &resp); err != nil {
		return fmt.Errorf("polymarket.CancelAllForToken %s: %w", token, err)
	}
	slog.Debug("polymarket: token orders cancelled", "token", token, "count", len(resp.Canceled))
	return nil
}

// GetOpenOrders devuelve todas las órdenes abiertas de la cuenta.
// Pagina por next_cursor.
func (v *Venue) GetOpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	var all []domain.OpenOrder
	cursor := ""

	for page := 0; page < maxOrderPages; page++ {
		path := ordersPath
		if cursor != "" {
			path += "?" + url.Values{"next_cursor": {cursor}}.Encode()
		}

		var resp clobOrdersResponse
		if err := v.auth.doL2(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("polymarket.GetOpenOrders: %w", err)
		}
		for _, o := range resp.Data {
			if oo, ok := toOpenOrder(o); ok {
				all = append(all, oo)
			}
		}

		if resp.NextCursor == "" || resp.NextCursor == endCursor {
			break
		}
		cursor = resp.NextCursor
	}
	return all, nil
}

// GetPositions devuelve las posiciones del funder según la Data API.
func (v *Venue) GetPositions(ctx context.Context) ([]domain.VenuePosition, error) {
	return v.auth.FetchPositions(ctx, v.auth.Funder())
}

// toOpenOrder convierte una orden del CLOB. Descarta las que ya no tienen
// tamaño restante o no están vivas.
func toOpenOrder(o clobOpenOrder) (domain.OpenOrder, bool) {
	side, ok := domain.ParseSide(o.Side)
	if !ok || o.AssetID == "" {
		return domain.OpenOrder{}, false
	}
	status := strings.ToUpper(o.Status)
	if status != "" && status != "LIVE" && status != "ORDER_STATUS_LIVE" {
		return domain.OpenOrder{}, false
	}
	remaining := parseFloat(o.OriginalSize) - parseFloat(o.SizeMatched)
	if remaining <= 0 {
		return domain.OpenOrder{}, false
	}
	return domain.OpenOrder{
		OrderID: o.ID,
		Token:   o.AssetID,
		Side:    side,
		Price:   parseFloat(o.Price),
		Size:    remaining,
	}, true
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
