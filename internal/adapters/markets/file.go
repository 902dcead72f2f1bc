// Package markets carga el snapshot de instrumentos a operar desde un YAML.
// El archivo se relee en cada llamada, así que editarlo en caliente cambia
// los mercados en el siguiente refresh del engine.
package markets

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

type fileMarket struct {
	MarketID              string  `yaml:"market_id"`
	Name                  string  `yaml:"name"`
	TokenYes              string  `yaml:"token_yes"`
	TokenNo               string  `yaml:"token_no"`
	TickSize              float64 `yaml:"tick_size"`
	MinSize               float64 `yaml:"min_size"`
	MaxSize               float64 `yaml:"max_size"`
	TradeSize             float64 `yaml:"trade_size"`
	NegRisk               bool    `yaml:"neg_risk"`
	Volatility3h          float64 `yaml:"volatility_3h"`
	VolatilityThreshold   float64 `yaml:"volatility_threshold"`
	DeviationTolerance    float64 `yaml:"deviation_tolerance"`
	Multiplier            int     `yaml:"multiplier"`
	AccumulationSellFloor float64 `yaml:"accumulation_sell_floor"`
	TakeProfitPct         float64 `yaml:"take_profit_pct"`
	Disabled              bool    `yaml:"disabled"`
}

type fileDoc struct {
	Markets []fileMarket `yaml:"markets"`
}

// FileSource implementa ports.MarketSource sobre un archivo YAML.
type FileSource struct {
	path string
}

// NewFileSource crea la fuente. El archivo no se lee hasta Instruments.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Instruments lee el archivo y devuelve los mercados no deshabilitados.
// La validación de cada instrumento la hace el engine.
func (s *FileSource) Instruments(ctx context.Context) ([]domain.Instrument, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("markets.Instruments: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("markets.Instruments: read %q: %w", s.path, err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("markets.Instruments: parse %q: %w", s.path, err)
	}

	out := make([]domain.Instrument, 0, len(doc.Markets))
	for _, m := range doc.Markets {
		if m.Disabled {
			continue
		}
		out = append(out, domain.Instrument{
			MarketID:              m.MarketID,
			Name:                  m.Name,
			TokenA:                m.TokenYes,
			TokenB:                m.TokenNo,
			TickSize:              m.TickSize,
			MinSize:               m.MinSize,
			MaxSize:               m.MaxSize,
			TradeSize:             m.TradeSize,
			NegRisk:               m.NegRisk,
			Volatility3h:          m.Volatility3h,
			VolatilityThreshold:   m.VolatilityThreshold,
			DeviationTolerance:    m.DeviationTolerance,
			Multiplier:            m.Multiplier,
			AccumulationSellFloor: m.AccumulationSellFloor,
			TakeProfitPct:         m.TakeProfitPct,
		})
	}
	return out, nil
}
