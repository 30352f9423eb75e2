// internal/app/runner.go
// Package app wires the configuration, clients, engine, and HTTP surface
// into a runnable process.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solpilot/solpilot/internal/chain"
	"github.com/solpilot/solpilot/internal/config"
	"github.com/solpilot/solpilot/internal/dex"
	"github.com/solpilot/solpilot/internal/ledger"
	"github.com/solpilot/solpilot/internal/market"
	"github.com/solpilot/solpilot/internal/monitor"
	"github.com/solpilot/solpilot/internal/server"
	"github.com/solpilot/solpilot/internal/session"
	"github.com/solpilot/solpilot/internal/trading"
	"github.com/solpilot/solpilot/internal/wallet"
)

type Runner struct {
	logger     *zap.Logger
	cfg        *config.Config
	monitor    *monitor.Monitor
	server     *server.Server
	shutdownCh chan os.Signal
}

// NewRunner builds the whole dependency graph from a loaded config. The
// supervisor's cadence goroutines are bound to ctx, so cancelling it stops
// every running session loop.
func NewRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	operating, err := wallet.New(cfg.WalletKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load operating wallet: %w", err)
	}
	logger.Info("Operating wallet loaded", zap.String("address", operating.Address()))

	chainClient := chain.NewClient(cfg.RPCList[0], logger)
	priceClient := market.NewPriceClient(cfg.PriceAPIURL, logger)
	signalClient := market.NewSignalClient(cfg.SignalAPIURL, logger)
	orderClient := dex.NewClient(cfg.OrderAPIURL, logger)

	lg := ledger.New(logger)
	store := session.NewStore()

	supported := make(map[string]bool, len(cfg.Tokens))
	for symbol := range cfg.Tokens {
		supported[symbol] = true
	}

	executor := trading.NewExecutor(trading.Config{
		Tokens:              cfg.Tokens,
		TakeProfitPct:       cfg.Trade.TakeProfitPct,
		StopLossPct:         cfg.Trade.StopLossPct,
		MaxHold:             cfg.Trade.MaxHold,
		EntryToleranceBps:   cfg.Exit.FloorBps,
		FloorToleranceBps:   cfg.Exit.FloorBps,
		AssumeFilledOnError: cfg.Trade.AssumeFilledOnError,
	}, priceClient, orderClient, trading.NewWalletSigner(operating), logger)

	supervisor := session.NewSupervisor(
		ctx,
		cfg.Trade,
		operating.PublicKey,
		supported,
		store,
		lg,
		executor,
		signalClient,
		chainClient,
		logger,
	)

	retrier := monitor.NewExitRetrier(cfg.Exit.LadderBps, cfg.Exit.RungDelay, executor, logger)
	mon := monitor.New(monitor.Config{Period: cfg.Exit.MonitorPeriod}, store, priceClient, retrier, logger)

	return &Runner{
		logger:     logger,
		cfg:        cfg,
		monitor:    mon,
		server:     server.New(cfg.ListenAddr, supervisor, logger),
		shutdownCh: make(chan os.Signal, 1),
	}, nil
}

// Run starts the monitor and HTTP server and blocks until a shutdown
// signal arrives or either component fails.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case sig := <-r.shutdownCh:
			r.logger.Info("Signal received, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-runCtx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		r.monitor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return r.server.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("runtime error: %w", err)
	}
	r.logger.Info("Shutdown complete")
	return nil
}
