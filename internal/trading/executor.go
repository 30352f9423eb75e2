// internal/trading/executor.go
// Package trading converts trade intents into priced orders and executes
// them through the order API, at most one at a time process-wide.
package trading

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/solpilot/solpilot/internal/dex"
	"github.com/solpilot/solpilot/internal/market"
)

// SolMint is the wrapped-SOL mint used as the base side of every order.
const SolMint = "So11111111111111111111111111111111111111112"

const solDecimals = 9

// PriceSource provides batched USD quotes.
type PriceSource interface {
	Prices(ctx context.Context, symbols []string) (map[string]market.TokenPrice, error)
}

// OrderAPI is the external order-creation/execution collaborator.
type OrderAPI interface {
	CreateOrder(ctx context.Context, req *dex.CreateOrderRequest) (*dex.CreateOrderResponse, error)
	Execute(ctx context.Context, signedTxBase64, requestID string) (*dex.ExecuteResponse, error)
}

// OrderSigner signs an unsigned order transaction with the operating key.
type OrderSigner interface {
	SignOrder(txBase64 string) (string, error)
	Address() string
}

// Config is the executor's trading policy.
type Config struct {
	Tokens              map[string]string // symbol -> mint
	TakeProfitPct       float64
	StopLossPct         float64
	MaxHold             time.Duration
	EntryToleranceBps   int
	FloorToleranceBps   int
	AssumeFilledOnError bool
}

// EntryResult is the outcome of an entry attempt. Skipped means the
// single-flight guard was busy; callers retry later, it is not a failure.
type EntryResult struct {
	Skipped   bool
	Position  *Position
	Signature string
}

// ExitResult is the outcome of a single exit attempt. The executor never
// retries; escalation is the retry controller's job.
type ExitResult struct {
	Skipped      bool
	Success      bool
	ToleranceBps int
	Signature    string
	Message      string
}

// Executor serializes all trade executions behind one process-wide guard.
// A single signing key cannot tolerate concurrent submissions, so entry and
// exit across every session share the same slot.
type Executor struct {
	cfg    Config
	prices PriceSource
	orders OrderAPI
	signer OrderSigner
	logger *zap.Logger
	guard  *semaphore.Weighted
}

func NewExecutor(cfg Config, prices PriceSource, orders OrderAPI, signer OrderSigner, logger *zap.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		prices: prices,
		orders: orders,
		signer: signer,
		logger: logger.Named("executor"),
		guard:  semaphore.NewWeighted(1),
	}
}

// ExecuteEntry opens a long position in token worth sizeSol.
func (e *Executor) ExecuteEntry(ctx context.Context, sessionID, token string, sizeSol float64) (*EntryResult, error) {
	if !e.guard.TryAcquire(1) {
		e.logger.Debug("Trade execution busy, skipping entry",
			zap.String("session_id", sessionID),
			zap.String("token", token))
		return &EntryResult{Skipped: true}, nil
	}
	defer e.guard.Release(1)

	mint, ok := e.cfg.Tokens[token]
	if !ok {
		return nil, fmt.Errorf("no mint mapping for token %s", token)
	}

	tokenPrice, solPrice, err := e.pricePair(ctx, token)
	if err != nil {
		return nil, err
	}

	quantity := sizeSol * solPrice.USDPrice / tokenPrice.USDPrice
	makingAmount := rawAmount(sizeSol, solDecimals)
	takingAmount := rawAmount(quantity, tokenPrice.Decimals)

	order, err := e.orders.CreateOrder(ctx, &dex.CreateOrderRequest{
		InputMint:    SolMint,
		OutputMint:   mint,
		Maker:        e.signer.Address(),
		MakingAmount: makingAmount,
		TakingAmount: takingAmount,
		SlippageBps:  e.cfg.EntryToleranceBps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create entry order: %w", err)
	}

	signedTx, err := e.signer.SignOrder(order.Transaction)
	if err != nil {
		return nil, fmt.Errorf("failed to sign entry order: %w", err)
	}

	var signature string
	execResp, execErr := e.orders.Execute(ctx, signedTx, order.RequestID)
	if execResp != nil {
		signature = execResp.Signature
	}
	if execErr != nil {
		if !e.cfg.AssumeFilledOnError {
			return nil, fmt.Errorf("entry execution failed: %w", execErr)
		}
		// Policy: a created-and-signed order is treated as likely to
		// settle even when the synchronous acknowledgement fails. The
		// position is recorded anyway and flagged loudly here.
		e.logger.Warn("Entry execute failed, recording position anyway (assume_filled_on_execute_error)",
			zap.String("session_id", sessionID),
			zap.String("token", token),
			zap.Error(execErr))
	}

	now := time.Now()
	pos := NewOpenPosition(&Position{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Token:      token,
		Mint:       mint,
		Direction:  market.DirectionBuy,
		EntryPrice: tokenPrice.USDPrice,
		Quantity:   quantity,
		SolSpent:   sizeSol,
		TakeProfit: tokenPrice.USDPrice * (1 + e.cfg.TakeProfitPct/100),
		StopLoss:   tokenPrice.USDPrice * (1 - e.cfg.StopLossPct/100),
		CreatedAt:  now,
		Deadline:   now.Add(e.cfg.MaxHold),
	})

	e.logger.Info("Entry executed",
		zap.String("session_id", sessionID),
		zap.String("position_id", pos.ID),
		zap.String("token", token),
		zap.Float64("size_sol", sizeSol),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Float64("quantity", quantity),
		zap.String("signature", signature))

	return &EntryResult{Position: pos, Signature: signature}, nil
}

// ExecuteExit attempts a single exit of the position at the given
// tolerance. The requested tolerance is clamped up to the configured floor:
// thin-liquidity exits are observed to fail below it.
func (e *Executor) ExecuteExit(ctx context.Context, pos *Position, reason ExitReason, toleranceBps int) (*ExitResult, error) {
	if !e.guard.TryAcquire(1) {
		e.logger.Debug("Trade execution busy, skipping exit",
			zap.String("position_id", pos.ID))
		return &ExitResult{Skipped: true}, nil
	}
	defer e.guard.Release(1)

	if toleranceBps < e.cfg.FloorToleranceBps {
		toleranceBps = e.cfg.FloorToleranceBps
	}

	tokenPrice, solPrice, err := e.pricePair(ctx, pos.Token)
	if err != nil {
		return nil, err
	}

	// Exit sizing uses the recorded fill quantity, never a re-estimated
	// balance.
	expectedSol := pos.Quantity * tokenPrice.USDPrice / solPrice.USDPrice
	makingAmount := rawAmount(pos.Quantity, tokenPrice.Decimals)
	takingAmount := rawAmount(expectedSol, solDecimals)

	order, err := e.orders.CreateOrder(ctx, &dex.CreateOrderRequest{
		InputMint:    pos.Mint,
		OutputMint:   SolMint,
		Maker:        e.signer.Address(),
		MakingAmount: makingAmount,
		TakingAmount: takingAmount,
		SlippageBps:  toleranceBps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exit order: %w", err)
	}

	signedTx, err := e.signer.SignOrder(order.Transaction)
	if err != nil {
		return nil, fmt.Errorf("failed to sign exit order: %w", err)
	}

	execResp, execErr := e.orders.Execute(ctx, signedTx, order.RequestID)
	if execErr != nil {
		e.logger.Warn("Exit execution failed",
			zap.String("position_id", pos.ID),
			zap.String("reason", string(reason)),
			zap.Int("tolerance_bps", toleranceBps),
			zap.Error(execErr))
		return &ExitResult{
			Success:      false,
			ToleranceBps: toleranceBps,
			Message:      execErr.Error(),
		}, nil
	}

	e.logger.Info("Exit executed",
		zap.String("position_id", pos.ID),
		zap.String("token", pos.Token),
		zap.String("reason", string(reason)),
		zap.Int("tolerance_bps", toleranceBps),
		zap.Float64("expected_sol", expectedSol),
		zap.String("signature", execResp.Signature))

	return &ExitResult{
		Success:      true,
		ToleranceBps: toleranceBps,
		Signature:    execResp.Signature,
	}, nil
}

func (e *Executor) pricePair(ctx context.Context, token string) (market.TokenPrice, market.TokenPrice, error) {
	prices, err := e.prices.Prices(ctx, []string{token, market.BaseSymbol})
	if err != nil {
		return market.TokenPrice{}, market.TokenPrice{}, fmt.Errorf("failed to fetch prices: %w", err)
	}
	tokenPrice, ok := prices[token]
	if !ok || tokenPrice.USDPrice <= 0 {
		return market.TokenPrice{}, market.TokenPrice{}, fmt.Errorf("no price for token %s", token)
	}
	solPrice, ok := prices[market.BaseSymbol]
	if !ok || solPrice.USDPrice <= 0 {
		return market.TokenPrice{}, market.TokenPrice{}, fmt.Errorf("no price for %s", market.BaseSymbol)
	}
	return tokenPrice, solPrice, nil
}

func rawAmount(amount float64, decimals uint8) uint64 {
	return uint64(math.Floor(amount * math.Pow10(int(decimals))))
}
