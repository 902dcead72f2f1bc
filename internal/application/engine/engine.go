// Package engine coordina el market making: recibe eventos del feed y
// confirmaciones de trades, ejecuta una pasada de decisión por instrumento,
// mantiene las órdenes en el venue, hace merges y reconcilia con el venue.
//
// Concurrencia: los libros y el ledger tienen cada uno su propio lock y
// ninguno se mantiene durante llamadas al venue. Las pasadas de un mismo
// instrumento nunca se solapan (scheduler); instrumentos distintos corren en
// goroutines independientes, así que un venue lento en uno no bloquea al resto.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/polymaker/internal/book"
	"github.com/alejandrodnm/polymaker/internal/domain"
	"github.com/alejandrodnm/polymaker/internal/ledger"
	"github.com/alejandrodnm/polymaker/internal/ports"
	"github.com/alejandrodnm/polymaker/internal/strategy"
)

const (
	defaultReconcileInterval = 5 * time.Second
	defaultPurgeInterval     = time.Second
	defaultVenueTimeout      = 10 * time.Second
	defaultMergeTimeout      = 90 * time.Second
	defaultMarketsRefresh    = 30 * time.Second
	defaultMinMergeSize      = 20
	defaultBandPct           = 0.10
	mergeRetryBackoff        = time.Minute
	journalTimeout           = 5 * time.Second
)

// Config holds the engine tuning knobs.
type Config struct {
	Params       strategy.Params
	BandPct      float64
	MinMergeSize float64

	ReconcileInterval time.Duration
	PurgeInterval     time.Duration
	StaleTradeAfter   time.Duration
	RecentUpdate      time.Duration
	VenueTimeout      time.Duration
	MergeTimeout      time.Duration
	MarketsRefresh    time.Duration
	StatusInterval    time.Duration // 0 → sin reporte periódico
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Params:            strategy.DefaultParams(),
		BandPct:           defaultBandPct,
		MinMergeSize:      defaultMinMergeSize,
		ReconcileInterval: defaultReconcileInterval,
		PurgeInterval:     defaultPurgeInterval,
		StaleTradeAfter:   ledger.DefaultStaleAfter,
		RecentUpdate:      ledger.DefaultRecentWindow,
		VenueTimeout:      defaultVenueTimeout,
		MergeTimeout:      defaultMergeTimeout,
		MarketsRefresh:    defaultMarketsRefresh,
	}
}

// Deps are the external collaborators. Venue is required; the rest are optional.
type Deps struct {
	Venue    ports.Venue
	Merger   ports.Merger
	RiskOff  ports.RiskOffStore
	Journal  ports.Journal
	Source   ports.MarketSource
	Feed     ports.FeedSubscriber
	Notifier ports.StatusNotifier
}

// Engine is the concurrency coordinator.
type Engine struct {
	cfg  Config
	deps Deps

	books  *book.Store
	ledger *ledger.Ledger
	sched  *scheduler
	now    func() time.Time

	mu           sync.RWMutex
	instruments  map[string]domain.Instrument // marketID → instrumento
	mergeBackoff map[string]time.Time
	runCtx       context.Context
}

// Option configura el Engine.
type Option func(*Engine)

// WithClock sustituye el reloj del engine y del ledger.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine.
func New(cfg Config, deps Deps, opts ...Option) *Engine {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = defaultReconcileInterval
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = defaultPurgeInterval
	}
	if cfg.VenueTimeout <= 0 {
		cfg.VenueTimeout = defaultVenueTimeout
	}
	if cfg.MergeTimeout <= 0 {
		cfg.MergeTimeout = defaultMergeTimeout
	}
	if cfg.MarketsRefresh <= 0 {
		cfg.MarketsRefresh = defaultMarketsRefresh
	}
	if cfg.BandPct <= 0 {
		cfg.BandPct = defaultBandPct
	}

	e := &Engine{
		cfg:          cfg,
		deps:         deps,
		books:        book.NewStore(),
		now:          time.Now,
		instruments:  make(map[string]domain.Instrument),
		mergeBackoff: make(map[string]time.Time),
		runCtx:       context.Background(),
	}
	for _, o := range opts {
		o(e)
	}
	e.ledger = ledger.New(cfg.StaleTradeAfter, cfg.RecentUpdate, ledger.WithClock(e.now))
	e.sched = newScheduler(e.Evaluate)
	return e
}

// Run loads the instrument snapshot, then reconciles, purges stale in-flight
// entries and refreshes the snapshot periodically until ctx is cancelled.
// Returns after every running decision pass has finished.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.runCtx = ctx
	e.mu.Unlock()

	if e.deps.Source != nil {
		if err := e.refreshInstruments(ctx); err != nil {
			return fmt.Errorf("engine.Run: initial markets: %w", err)
		}
	}
	if err := e.Reconcile(ctx); err != nil {
		slog.Warn("engine: initial reconciliation failed", "err", err)
	}

	reconcile := time.NewTicker(e.cfg.ReconcileInterval)
	defer reconcile.Stop()
	purge := time.NewTicker(e.cfg.PurgeInterval)
	defer purge.Stop()
	refresh := time.NewTicker(e.cfg.MarketsRefresh)
	defer refresh.Stop()

	var status <-chan time.Time
	if e.cfg.StatusInterval > 0 && e.deps.Notifier != nil {
		t := time.NewTicker(e.cfg.StatusInterval)
		defer t.Stop()
		status = t.C
	}

	slog.Info("engine: running",
		"instruments", len(e.Instruments()),
		"reconcile_every", e.cfg.ReconcileInterval,
	)

	for {
		select {
		case <-ctx.Done():
			e.sched.Stop()
			slog.Info("engine: stopped")
			return nil
		case <-reconcile.C:
			if err := e.Reconcile(ctx); err != nil {
				slog.Warn("engine: reconciliation failed, retrying next cycle", "err", err)
			}
		case <-purge.C:
			if n := e.ledger.PurgeStale(); n > 0 {
				slog.Debug("engine: purged stale in-flight entries", "count", n)
			}
		case <-refresh.C:
			if e.deps.Source == nil {
				continue
			}
			if err := e.refreshInstruments(ctx); err != nil {
				slog.Warn("engine: markets refresh failed, keeping previous snapshot", "err", err)
			}
		case <-status:
			e.deps.Notifier.PrintStatus(e.Status())
		}
	}
}

// OnBookSnapshot implements ports.BookHandler.
func (e *Engine) OnBookSnapshot(ev domain.BookSnapshot) {
	market, err := e.books.ApplyBookSnapshot(ev)
	if err != nil {
		return
	}
	e.trigger(market)
}

// OnPriceChange implements ports.BookHandler.
func (e *Engine) OnPriceChange(ev domain.PriceChange) {
	market, err := e.books.ApplyPriceChange(ev)
	if err != nil {
		return
	}
	e.trigger(market)
}

// OnTrade implements ports.TradeHandler.
func (e *Engine) OnTrade(ev domain.TradeEvent) {
	market, ok := e.books.MarketOf(ev.Token)
	if !ok {
		slog.Warn("engine: trade for unknown token dropped", "trade", ev.TradeID, "token", ev.Token)
		return
	}
	if _, ok := domain.ParseSide(string(ev.Side)); !ok {
		slog.Warn("engine: trade without side dropped", "trade", ev.TradeID, "token", ev.Token)
		return
	}

	if e.ledger.ApplyTrade(ev) {
		slog.Info("engine: fill",
			"market", market, "token", ev.Token, "side", ev.Side,
			"price", ev.Price, "size", ev.Size, "trade", ev.TradeID,
		)
		e.journalFill(domain.Fill{
			TradeID:    ev.TradeID,
			MarketID:   market,
			Token:      ev.Token,
			Side:       ev.Side,
			Price:      ev.Price,
			Size:       ev.Size,
			ExecutedAt: e.now().UTC(),
		})
	}
	e.trigger(market)
}

// OnOrderEvent implements ports.TradeHandler.
func (e *Engine) OnOrderEvent(ev domain.OrderEvent) {
	e.ledger.ApplyOrderEvent(ev)
}

// Instruments returns the current instrument snapshot ordered by market ID.
func (e *Engine) Instruments() []domain.Instrument {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Instrument, 0, len(e.instruments))
	for _, inst := range e.instruments {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

func (e *Engine) instrument(marketID string) (domain.Instrument, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	inst, ok := e.instruments[marketID]
	return inst, ok
}

func (e *Engine) trackedTokens() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tokens := make([]string, 0, 2*len(e.instruments))
	for _, inst := range e.instruments {
		tokens = append(tokens, inst.TokenA, inst.TokenB)
	}
	return tokens
}

func (e *Engine) trigger(marketID string) {
	e.mu.RLock()
	ctx := e.runCtx
	e.mu.RUnlock()
	e.sched.Trigger(ctx, marketID)
}

// Wait blocks until every scheduled decision pass has finished.
func (e *Engine) Wait() {
	e.sched.Wait()
}

// Status returns one row per tracked token.
func (e *Engine) Status() []domain.TokenStatus {
	var rows []domain.TokenStatus
	for _, inst := range e.Instruments() {
		for _, token := range inst.Tokens() {
			v := e.ledger.View(token)
			rows = append(rows, domain.TokenStatus{
				MarketID: inst.MarketID,
				Name:     inst.Name,
				Token:    token,
				Position: v.Position,
				Buy:      v.Buy,
				Sell:     v.Sell,
				InFlight: v.InFlight,
			})
		}
	}
	return rows
}

func (e *Engine) journalFill(f domain.Fill) {
	if e.deps.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := e.deps.Journal.RecordFill(ctx, f); err != nil {
		slog.Warn("engine: journal fill failed", "trade", f.TradeID, "err", err)
	}
}
