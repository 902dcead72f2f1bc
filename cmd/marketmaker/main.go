package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polymaker/config"
	"github.com/alejandrodnm/polymaker/internal/adapters/notify"
	"github.com/alejandrodnm/polymaker/internal/adapters/storage"
	"github.com/alejandrodnm/polymaker/internal/application/engine"
	"github.com/alejandrodnm/polymaker/internal/domain"
	"github.com/alejandrodnm/polymaker/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "simulate orders and merges in memory (market feed stays live)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print the fill/merge journal and exit")
	reportDays := flag.Int("report-days", 1, "days covered by -report")
	riskOff := flag.String("risk-off", "", "market ID to put in risk-off and exit")
	riskOffFor := flag.Duration("risk-off-for", 30*time.Minute, "risk-off duration (0 clears the record)")
	riskOffReason := flag.String("risk-off-reason", "manual", "reason stored with -risk-off")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	// sin risk-off persistente no se puede operar: fallo fatal al arrancar
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notifier := notify.NewConsole()

	switch {
	case *riskOff != "":
		if err := setRiskOff(ctx, store, *riskOff, *riskOffFor, *riskOffReason); err != nil {
			slog.Error("risk-off failed", "err", err, "market", *riskOff)
			os.Exit(1)
		}
		return
	case *report:
		to := time.Now().UTC()
		from := to.Add(-time.Duration(*reportDays) * 24 * time.Hour)
		rows, err := store.Report(ctx, from, to)
		if err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		notifier.PrintReport(rows, from, to)
		return
	}

	slog.Info("polymaker starting",
		"config", *configPath,
		"dry_run", *dryRun || cfg.Engine.DryRun,
		"markets_file", cfg.Markets.File,
		"reconcile_every", cfg.ReconcileInterval(),
	)

	if err := run(ctx, cfg, *dryRun || cfg.Engine.DryRun, store, notifier); err != nil {
		slog.Error("market maker exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("polymaker stopped cleanly")
}

func setRiskOff(ctx context.Context, store *storage.SQLiteStorage, marketID string, d time.Duration, reason string) error {
	if d <= 0 {
		if err := store.ClearRiskOff(ctx, marketID); err != nil {
			return err
		}
		slog.Info("risk-off cleared", "market", marketID)
		return nil
	}
	rec := domain.RiskOffRecord{MarketID: marketID, SleepTill: time.Now().Add(d).UTC(), Reason: reason}
	if err := store.SetRiskOff(ctx, rec); err != nil {
		return err
	}
	slog.Info("risk-off set", "market", marketID, "until", rec.SleepTill.Format(time.RFC3339), "reason", reason)
	return nil
}

// engineConfig traduce la configuración del proceso a la del engine.
func engineConfig(cfg *config.Config) engine.Config {
	t := cfg.Trading
	ec := engine.DefaultConfig()
	ec.Params = strategy.Params{
		TakeoverSize:         t.TakeoverSize,
		MinSpread:            t.MinSpread,
		MaxDeviation:         t.MaxDeviation,
		LowPriceCutoff:       t.LowPriceCutoff,
		MinSizeRoundRatio:    t.MinSizeRoundRatio,
		AbsoluteMaxPosition:  t.AbsoluteMaxPosition,
		MinSentiment:         t.MinSentiment,
		PriceChangeThreshold: t.PriceChangeThreshold,
		SizeChangeThreshold:  t.SizeChangeThreshold,
	}
	ec.BandPct = t.BandPct
	ec.MinMergeSize = t.MinMergeSize
	ec.ReconcileInterval = cfg.ReconcileInterval()
	ec.PurgeInterval = cfg.PurgeInterval()
	ec.StaleTradeAfter = cfg.StaleTradeAfter()
	ec.RecentUpdate = cfg.RecentUpdate()
	ec.VenueTimeout = cfg.VenueTimeout()
	ec.MarketsRefresh = cfg.MarketsRefresh()
	ec.StatusInterval = cfg.StatusInterval()
	return ec
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
