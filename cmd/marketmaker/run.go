package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/polymaker/config"
	"github.com/alejandrodnm/polymaker/internal/adapters/markets"
	"github.com/alejandrodnm/polymaker/internal/adapters/notify"
	"github.com/alejandrodnm/polymaker/internal/adapters/onchain"
	"github.com/alejandrodnm/polymaker/internal/adapters/paper"
	"github.com/alejandrodnm/polymaker/internal/adapters/polymarket"
	"github.com/alejandrodnm/polymaker/internal/adapters/storage"
	"github.com/alejandrodnm/polymaker/internal/application/engine"
	"github.com/alejandrodnm/polymaker/internal/domain"
	"github.com/alejandrodnm/polymaker/internal/ports"
)

// bookRelay rompe el ciclo feed → engine → feed: el feed se crea antes que
// el engine y el destino se fija antes de arrancar el feed.
type bookRelay struct {
	target ports.BookHandler
}

func (r *bookRelay) OnBookSnapshot(ev domain.BookSnapshot) { r.target.OnBookSnapshot(ev) }
func (r *bookRelay) OnPriceChange(ev domain.PriceChange) { r.target.OnPriceChange(ev) }

func run(ctx context.Context, cfg *config.Config, dryRun bool, store *storage.SQLiteStorage, notifier *notify.Console) error {
	relay := &bookRelay{}
	marketFeed := polymarket.NewMarketFeed(cfg.API.WSMarketURL, relay)

	deps := engine.Deps{
		RiskOff:  store,
		Journal:  store,
		Source:   markets.NewFileSource(cfg.Markets.File),
		Feed:     marketFeed,
		Notifier: notifier,
	}

	var (
		auth *polymarket.AuthClient
		sim  *paper.Venue
	)
	if dryRun {
		sim = paper.NewVenue()
		deps.Venue = sim
		deps.Merger = sim
		slog.Info("=== DRY RUN: orders and merges are simulated in memory ===")
	} else {
		venue, merger, a, err := connectLive(ctx, cfg)
		if err != nil {
			return err
		}
		auth = a
		deps.Venue = venue
		if merger != nil {
			deps.Merger = merger
		}
	}

	eng := engine.New(engineConfig(cfg), deps)

	var userFeed *polymarket.UserFeed
	if sim != nil {
		relay.target = paper.NewSimulator(sim, eng, eng)
	} else {
		relay.target = eng
		userFeed = polymarket.NewUserFeed(cfg.API.WSUserURL, auth.Credentials, eng)
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				slog.Error("feed stopped", "feed", name, "err", err)
			}
		}()
	}
	start("market", marketFeed.Run)
	if userFeed != nil {
		start("user", userFeed.Run)
	}

	err := eng.Run(ctx)
	stop()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	notifier.PrintStatus(eng.Status())
	return nil
}

// connectLive autentica contra el CLOB y prepara el merger on-chain.
// Sin RPC, o con un funder proxy, el engine opera sin merges.
func connectLive(ctx context.Context, cfg *config.Config) (*polymarket.Venue, *onchain.MergeClient, *polymarket.AuthClient, error) {
	if cfg.Wallet.PrivateKey == "" {
		return nil, nil, nil, fmt.Errorf("connectLive: POLY_PRIVATE_KEY is required outside dry-run")
	}

	auth, err := polymarket.NewAuthClient(cfg.API.CLOBBase, cfg.API.DataBase, cfg.Wallet.PrivateKey, cfg.Wallet.Funder)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connectLive: %w", err)
	}
	credCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := auth.EnsureCreds(credCtx); err != nil {
		return nil, nil, nil, fmt.Errorf("connectLive: derive api credentials, check POLY_PRIVATE_KEY: %w", err)
	}
	slog.Info("live: authenticated with Polymarket CLOB", "address", auth.Address(), "funder", auth.Funder())

	if cfg.Wallet.RPCURL == "" {
		slog.Warn("live: no rpc url, merges disabled")
		return polymarket.NewVenue(auth), nil, auth, nil
	}
	if !mergesSupported(auth.Address(), auth.Funder()) {
		slog.Warn("live: funder is a proxy wallet, merges disabled",
			"signer", auth.Address(), "funder", auth.Funder())
		return polymarket.NewVenue(auth), nil, auth, nil
	}
	merger, err := onchain.NewMergeClient(cfg.Wallet.RPCURL, cfg.Wallet.PrivateKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connectLive: %w", err)
	}
	slog.Info("live: checking on-chain approvals...")
	if err := merger.EnsureApprovals(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("connectLive: approvals: %w", err)
	}
	slog.Info("live: all approvals verified")
	return polymarket.NewVenue(auth), merger, auth, nil
}

// mergesSupported indica si la EOA que firma los merges custodia también las
// posiciones. Con un funder proxy los tokens no están en la EOA.
func mergesSupported(signer, funder string) bool {
	return funder == "" || strings.EqualFold(signer, funder)
}
