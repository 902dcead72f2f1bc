package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del market maker.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Trading TradingConfig `yaml:"trading"`
	API     APIConfig     `yaml:"api"`
	Wallet  WalletConfig  `yaml:"wallet"`
	Storage StorageConfig `yaml:"storage"`
	Markets MarketsConfig `yaml:"markets"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig controla los intervalos del engine.
type EngineConfig struct {
	ReconcileIntervalSeconds int  `yaml:"reconcile_interval_seconds"`
	StaleTradeSeconds        int  `yaml:"stale_trade_seconds"`   // entradas en vuelo sin confirmar se purgan
	RecentUpdateSeconds      int  `yaml:"recent_update_seconds"` // la reconciliación no pisa tamaños más recientes
	VenueTimeoutSeconds      int  `yaml:"venue_timeout_seconds"`
	PurgeIntervalMs          int  `yaml:"purge_interval_ms"`
	MarketsRefreshSeconds    int  `yaml:"markets_refresh_seconds"`
	StatusIntervalSeconds    int  `yaml:"status_interval_seconds"` // 0 → sin tabla periódica
	DryRun                   bool `yaml:"dry_run"`
}

// TradingConfig agrupa los umbrales globales de pricing, sizing y riesgo.
type TradingConfig struct {
	PriceChangeThreshold float64 `yaml:"price_change_threshold"`
	SizeChangeThreshold  float64 `yaml:"size_change_threshold"`
	MinMergeSize         float64 `yaml:"min_merge_size"`
	AbsoluteMaxPosition  float64 `yaml:"absolute_max_position"`
	TakeoverSize         float64 `yaml:"takeover_size"`
	MinSpread            float64 `yaml:"min_spread"`
	MaxDeviation         float64 `yaml:"max_deviation"`
	LowPriceCutoff       float64 `yaml:"low_price_cutoff"`
	MinSizeRoundRatio    float64 `yaml:"min_size_round_ratio"`
	BandPct              float64 `yaml:"band_pct"`
	MinSentiment         float64 `yaml:"min_sentiment"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase    string `yaml:"clob_base"`
	DataBase    string `yaml:"data_base"`
	WSMarketURL string `yaml:"ws_market_url"`
	WSUserURL   string `yaml:"ws_user_url"`
}

// WalletConfig identifica la cuenta. Normalmente llega por .env.
type WalletConfig struct {
	PrivateKey string `yaml:"private_key"`
	RPCURL     string `yaml:"rpc_url"`
	Funder     string `yaml:"funder"` // proxy wallet; vacío → la propia EOA
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// MarketsConfig indica de dónde sale el snapshot de instrumentos.
type MarketsConfig struct {
	File string `yaml:"file"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// ReconcileInterval devuelve el intervalo de reconciliación.
func (c *Config) ReconcileInterval() time.Duration {
	return seconds(c.Engine.ReconcileIntervalSeconds)
}

// StaleTradeAfter devuelve la ventana de purga de entradas en vuelo.
func (c *Config) StaleTradeAfter() time.Duration {
	return seconds(c.Engine.StaleTradeSeconds)
}

// RecentUpdate devuelve la ventana que protege tamaños tocados localmente.
func (c *Config) RecentUpdate() time.Duration {
	return seconds(c.Engine.RecentUpdateSeconds)
}

// VenueTimeout devuelve el timeout por llamada al venue.
func (c *Config) VenueTimeout() time.Duration {
	return seconds(c.Engine.VenueTimeoutSeconds)
}

// PurgeInterval devuelve cada cuánto se purgan entradas en vuelo.
func (c *Config) PurgeInterval() time.Duration {
	return time.Duration(c.Engine.PurgeIntervalMs) * time.Millisecond
}

// MarketsRefresh devuelve cada cuánto se relee el snapshot de mercados.
func (c *Config) MarketsRefresh() time.Duration {
	return seconds(c.Engine.MarketsRefreshSeconds)
}

// StatusInterval devuelve cada cuánto se imprime la tabla de estado.
func (c *Config) StatusInterval() time.Duration {
	return seconds(c.Engine.StatusIntervalSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLY_PRIVATE_KEY"); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := os.Getenv("POLY_RPC_URL"); v != "" {
		cfg.Wallet.RPCURL = v
	}
	if v := os.Getenv("POLY_FUNDER"); v != "" {
		cfg.Wallet.Funder = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	e := &cfg.Engine
	if e.ReconcileIntervalSeconds <= 0 {
		e.ReconcileIntervalSeconds = 5
	}
	if e.StaleTradeSeconds <= 0 {
		e.StaleTradeSeconds = 15
	}
	if e.RecentUpdateSeconds <= 0 {
		e.RecentUpdateSeconds = 5
	}
	if e.VenueTimeoutSeconds <= 0 {
		e.VenueTimeoutSeconds = 10
	}
	if e.PurgeIntervalMs <= 0 {
		e.PurgeIntervalMs = 1000
	}
	if e.MarketsRefreshSeconds <= 0 {
		e.MarketsRefreshSeconds = 30
	}
	if e.StatusIntervalSeconds < 0 {
		e.StatusIntervalSeconds = 0
	}

	t := &cfg.Trading
	if t.PriceChangeThreshold <= 0 {
		t.PriceChangeThreshold = 0.005
	}
	if t.SizeChangeThreshold <= 0 {
		t.SizeChangeThreshold = 0.10
	}
	if t.MinMergeSize <= 0 {
		t.MinMergeSize = 20
	}
	if t.AbsoluteMaxPosition <= 0 {
		t.AbsoluteMaxPosition = 250
	}
	if t.TakeoverSize <= 0 {
		t.TakeoverSize = 5
	}
	if t.MinSpread <= 0 {
		t.MinSpread = 0.10
	}
	if t.MaxDeviation <= 0 {
		t.MaxDeviation = 0.05
	}
	if t.LowPriceCutoff <= 0 {
		t.LowPriceCutoff = 0.10
	}
	if t.MinSizeRoundRatio <= 0 {
		t.MinSizeRoundRatio = 0.7
	}
	if t.BandPct <= 0 {
		t.BandPct = 0.10
	}
	// MinSentiment: 0 es un valor válido (y el default)

	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.WSMarketURL == "" {
		cfg.API.WSMarketURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.API.WSUserURL == "" {
		cfg.API.WSUserURL = "wss://ws-subscriptions-clob.polymarket.com/ws/user"
	}
	if cfg.Wallet.RPCURL == "" {
		cfg.Wallet.RPCURL = "https://polygon-rpc.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polymaker.db"
	}
	if cfg.Markets.File == "" {
		cfg.Markets.File = "config/markets.yaml"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
