package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

const (
	positionsPath     = "/positions"
	positionsPageSize = 500
	positionsMaxPages = 10
)

// rawPosition es un item de GET /positions de la Data API.
type rawPosition struct {
	Asset       string  `json:"asset"`
	ConditionID string  `json:"conditionId"`
	Size        float64 `json:"size"`
	AvgPrice    float64 `json:"avgPrice"`
	CurPrice    float64 `json:"curPrice"`
	Outcome     string  `json:"outcome"`
}

// FetchPositions devuelve las posiciones de user según la Data API.
// Pagina por offset hasta recibir una página incompleta.
func (c *Client) FetchPositions(ctx context.Context, user string) ([]domain.VenuePosition, error) {
	var all []domain.VenuePosition

	for page := 0; page < positionsMaxPages; page++ {
		q := url.Values{}
		q.Set("user", user)
		q.Set("sizeThreshold", "0")
		q.Set("limit", strconv.Itoa(positionsPageSize))
		q.Set("offset", strconv.Itoa(page*positionsPageSize))

		var resp []rawPosition
		if err := c.get(ctx, c.dataLimiter, c.dataBase+positionsPath+"?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("polymarket.FetchPositions: %w", err)
		}
		for _, p := range resp {
			if p.Asset == "" {
				continue
			}
			all = append(all, domain.VenuePosition{Token: p.Asset, Size: p.Size, AvgPrice: p.AvgPrice})
		}
		if len(resp) < positionsPageSize {
			break
		}
	}

	slog.Debug("polymarket: positions fetched", "count", len(all))
	return all, nil
}
