// internal/monitor/monitor.go
// Package monitor watches every open position and drives exits through the
// escalating-tolerance retry ladder.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solpilot/solpilot/internal/market"
	"github.com/solpilot/solpilot/internal/trading"
)

// PriceSource provides batched USD quotes.
type PriceSource interface {
	Prices(ctx context.Context, symbols []string) (map[string]market.TokenPrice, error)
}

// PositionSource yields every open position across all sessions.
type PositionSource interface {
	OpenPositions() []*trading.Position
}

// Config is the monitoring policy.
type Config struct {
	Period time.Duration
}

// Monitor evaluates exit conditions on a fixed period for the lifetime of
// the process. It reads positions only; session state is never consulted.
type Monitor struct {
	cfg       Config
	positions PositionSource
	prices    PriceSource
	retrier   *ExitRetrier
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{} // position ids with a running exit ladder
}

func New(cfg Config, positions PositionSource, prices PriceSource, retrier *ExitRetrier, logger *zap.Logger) *Monitor {
	return &Monitor{
		cfg:       cfg,
		positions: positions,
		prices:    prices,
		retrier:   retrier,
		logger:    logger.Named("monitor"),
		inFlight:  make(map[string]struct{}),
	}
}

// Run ticks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Period)
	defer ticker.Stop()

	m.logger.Info("Position monitor started", zap.Duration("period", m.cfg.Period))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Position monitor stopped")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick evaluates every open position against one batched price fetch.
func (m *Monitor) tick(ctx context.Context) {
	open := m.positions.OpenPositions()
	if len(open) == 0 {
		return
	}

	prices, err := m.prices.Prices(ctx, distinctTokens(open))
	if err != nil {
		m.logger.Warn("Price fetch failed, skipping tick", zap.Error(err))
		return
	}

	now := time.Now()
	for _, pos := range open {
		price, found := prices[pos.Token]
		if !found || price.USDPrice <= 0 {
			// No quote this tick is not an error; the position waits.
			continue
		}

		reason, triggered := EvaluateExit(pos, price.USDPrice, now)
		if !triggered {
			continue
		}
		if !m.claim(pos.ID) {
			continue // ladder already running for this position
		}

		m.logger.Info("Exit condition triggered",
			zap.String("position_id", pos.ID),
			zap.String("token", pos.Token),
			zap.String("reason", string(reason)),
			zap.Float64("price", price.USDPrice))

		go func(pos *trading.Position, reason trading.ExitReason) {
			defer m.release(pos.ID)
			m.retrier.Run(ctx, pos, reason)
		}(pos, reason)
	}
}

// EvaluateExit checks the exit conditions in strict priority order:
// take-profit, then stop-loss, then deadline. Only the first match counts.
func EvaluateExit(pos *trading.Position, price float64, now time.Time) (trading.ExitReason, bool) {
	switch {
	case price >= pos.TakeProfit:
		return trading.ExitTakeProfit, true
	case price <= pos.StopLoss:
		return trading.ExitStopLoss, true
	case !now.Before(pos.Deadline):
		return trading.ExitTimeout, true
	default:
		return "", false
	}
}

func (m *Monitor) claim(positionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.inFlight[positionID]; busy {
		return false
	}
	m.inFlight[positionID] = struct{}{}
	return true
}

func (m *Monitor) release(positionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, positionID)
}

func distinctTokens(positions []*trading.Position) []string {
	seen := make(map[string]struct{}, len(positions))
	var tokens []string
	for _, p := range positions {
		if _, dup := seen[p.Token]; dup {
			continue
		}
		seen[p.Token] = struct{}{}
		tokens = append(tokens, p.Token)
	}
	return tokens
}
