// internal/session/supervisor.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solpilot/solpilot/internal/chain"
	"github.com/solpilot/solpilot/internal/config"
	"github.com/solpilot/solpilot/internal/ledger"
	"github.com/solpilot/solpilot/internal/market"
	"github.com/solpilot/solpilot/internal/metrics"
	"github.com/solpilot/solpilot/internal/trading"
)

// SignalSource feeds directional trade signals.
type SignalSource interface {
	LatestSignals(ctx context.Context) ([]market.Signal, error)
}

// EntryExecutor opens positions; the supervisor never talks to the order
// API directly.
type EntryExecutor interface {
	ExecuteEntry(ctx context.Context, sessionID, token string, sizeSol float64) (*trading.EntryResult, error)
}

// ChainClient builds and submits the native funding transfer.
type ChainClient interface {
	BuildTransfer(ctx context.Context, from, to solana.PublicKey, amountSol float64) (*solana.Transaction, error)
	Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Result is the envelope every public supervisor operation returns.
// Internal failures are converted into Success=false here; nothing panics
// or errors past this boundary.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(msg string) Result   { return Result{Success: true, Message: msg} }
func fail(msg string) Result { return Result{Success: false, Message: msg} }

// LaunchResult carries the new session id and the unsigned funding
// transaction the caller must co-sign.
type LaunchResult struct {
	Result
	SessionID string `json:"session_id,omitempty"`
	FundingTx string `json:"funding_tx,omitempty"` // base64, unsigned
}

// StatusResult carries a read-only session snapshot.
type StatusResult struct {
	Result
	Session *Snapshot `json:"session,omitempty"`
}

// Supervisor drives every session: launch, deposit confirmation, the
// trading cadence, and stop.
type Supervisor struct {
	cfg       config.TradeConfig
	operating solana.PublicKey
	supported map[string]bool

	store    *Store
	ledger   *ledger.Ledger
	executor EntryExecutor
	signals  SignalSource
	chain    ChainClient
	logger   *zap.Logger

	// rootCtx bounds every cadence goroutine to process lifetime.
	rootCtx context.Context
}

func NewSupervisor(
	ctx context.Context,
	cfg config.TradeConfig,
	operating solana.PublicKey,
	supported map[string]bool,
	store *Store,
	lg *ledger.Ledger,
	executor EntryExecutor,
	signals SignalSource,
	chain ChainClient,
	logger *zap.Logger,
) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		operating: operating,
		supported: supported,
		store:     store,
		ledger:    lg,
		executor:  executor,
		signals:   signals,
		chain:     chain,
		logger:    logger.Named("supervisor"),
		rootCtx:   ctx,
	}
}

// Launch creates a session in PENDING_DEPOSIT and returns the unsigned
// funding transfer from the user's wallet to the operating wallet.
func (sup *Supervisor) Launch(ctx context.Context, walletAddr string, amount float64) *LaunchResult {
	if amount <= 0 {
		return &LaunchResult{Result: fail(fmt.Sprintf("allocated amount must be positive, got %f", amount))}
	}
	if sup.operating.IsZero() {
		return &LaunchResult{Result: fail("no operating wallet configured")}
	}
	user, err := solana.PublicKeyFromBase58(walletAddr)
	if err != nil {
		return &LaunchResult{Result: fail(fmt.Sprintf("invalid wallet address: %v", err))}
	}

	tx, err := sup.chain.BuildTransfer(ctx, user, sup.operating, amount)
	if err != nil {
		sup.logger.Error("Failed to build funding transfer", zap.Error(err))
		return &LaunchResult{Result: fail(fmt.Sprintf("failed to build funding transaction: %v", err))}
	}
	txBase64, err := tx.ToBase64()
	if err != nil {
		return &LaunchResult{Result: fail(fmt.Sprintf("failed to encode funding transaction: %v", err))}
	}

	sess := newSession(uuid.New().String(), walletAddr, amount, sup.cfg.Quota)
	sup.store.add(sess)
	metrics.SessionTransitions.WithLabelValues(string(StatePendingDeposit)).Inc()

	sup.logger.Info("Session launched",
		zap.String("session_id", sess.ID),
		zap.String("wallet", walletAddr),
		zap.Float64("allocated", amount))

	return &LaunchResult{
		Result:    ok("session created, awaiting deposit"),
		SessionID: sess.ID,
		FundingTx: txBase64,
	}
}

// ConfirmDeposit submits the co-signed funding transaction. Success moves
// the session to RUNNING and starts the trading cadence; a settlement
// failure is terminal for the session. The transition out of
// PENDING_DEPOSIT is claimed atomically, so of two concurrent
// confirmations exactly one settles the deposit.
func (sup *Supervisor) ConfirmDeposit(ctx context.Context, sessionID, signedTxBase64, walletAddr string, amount float64) *Result {
	sess, found := sup.store.Get(sessionID)
	if !found {
		r := fail(fmt.Sprintf("session %s not found", sessionID))
		return &r
	}
	if amount != sess.Allocated {
		r := fail(fmt.Sprintf("deposit amount %f does not match allocated %f", amount, sess.Allocated))
		return &r
	}
	if !sess.transitionFrom(StatePendingDeposit, StateRunning) {
		r := fail(fmt.Sprintf("session is %s, deposit can only be confirmed once from PENDING_DEPOSIT", sess.State()))
		return &r
	}

	if err := sup.settleDeposit(ctx, sess, signedTxBase64, walletAddr, amount); err != nil {
		sess.transition(StateFailed)
		metrics.SessionTransitions.WithLabelValues(string(StateFailed)).Inc()
		sup.logger.Error("Deposit failed, session terminal",
			zap.String("session_id", sessionID),
			zap.Error(err))
		r := fail(fmt.Sprintf("deposit failed: %v", err))
		return &r
	}

	sess.markFunded()
	metrics.SessionTransitions.WithLabelValues(string(StateRunning)).Inc()

	if sess.State() != StateRunning {
		// Stopped while the deposit was settling. The funds are reserved
		// now, so hand the remaining balance straight back.
		sup.releaseRemaining(sess)
		r := ok("deposit confirmed, session already stopped")
		return &r
	}

	cadenceCtx, cancel := context.WithCancel(sup.rootCtx)
	sess.setCancel(cancel)
	go sup.runCadence(cadenceCtx, sess)

	sup.logger.Info("Deposit confirmed, session running",
		zap.String("session_id", sessionID),
		zap.Float64("amount", amount))

	r := ok("deposit confirmed, trading started")
	return &r
}

func (sup *Supervisor) settleDeposit(ctx context.Context, sess *Session, signedTxBase64, walletAddr string, amount float64) error {
	tx, err := chain.TransactionFromBase64(signedTxBase64)
	if err != nil {
		return fmt.Errorf("invalid signed funding transaction: %w", err)
	}
	sig, err := sup.chain.Submit(ctx, tx)
	if err != nil {
		return fmt.Errorf("funding transaction not settled: %w", err)
	}
	sup.logger.Info("Funding transaction settled",
		zap.String("session_id", sess.ID),
		zap.String("signature", sig.String()))

	sup.ledger.Deposit(walletAddr, amount)
	if err := sup.ledger.Reserve(walletAddr, amount); err != nil {
		return fmt.Errorf("failed to reserve deposit: %w", err)
	}
	return nil
}

// Stop moves the session to STOPPED from any non-terminal state and
// returns the remaining balance to the ledger. Calling it again is a
// harmless no-op; the release happens once.
func (sup *Supervisor) Stop(sessionID string) *Result {
	sess, found := sup.store.Get(sessionID)
	if !found {
		r := fail(fmt.Sprintf("session %s not found", sessionID))
		return &r
	}

	if sess.transition(StateStopped) {
		metrics.SessionTransitions.WithLabelValues(string(StateStopped)).Inc()
		sess.stopCadence()
		sup.releaseRemaining(sess)
		sup.logger.Info("Session stopped", zap.String("session_id", sessionID))
		r := ok("session stopped, unused funds returned")
		return &r
	}

	if sess.State() == StateStopped {
		r := ok("session already stopped")
		return &r
	}
	r := fail(fmt.Sprintf("session is %s and cannot be stopped", sess.State()))
	return &r
}

// Status returns a read-only snapshot of the session.
func (sup *Supervisor) Status(sessionID string) *StatusResult {
	sess, found := sup.store.Get(sessionID)
	if !found {
		return &StatusResult{Result: fail(fmt.Sprintf("session %s not found", sessionID))}
	}
	snap := sess.Snapshot()
	return &StatusResult{Result: ok("ok"), Session: &snap}
}

// runCadence is the per-session trading loop. It is cancelled through the
// session's context, so a stopped session's pending recheck is inert.
func (sup *Supervisor) runCadence(ctx context.Context, sess *Session) {
	logger := sup.logger.With(zap.String("session_id", sess.ID))
	logger.Debug("Trading cadence started")

	delay := sup.step(ctx, sess)
	for delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Debug("Trading cadence cancelled")
			return
		case <-timer.C:
		}
		delay = sup.step(ctx, sess)
	}
	logger.Debug("Trading cadence finished")
}

// step runs one cadence iteration and returns the delay until the next,
// or 0 to end the loop. Trading errors are transient by policy: they back
// off and retry, they never fail the session.
func (sup *Supervisor) step(ctx context.Context, sess *Session) time.Duration {
	if sess.State() != StateRunning {
		return 0
	}

	if sess.Trades() >= sess.Quota {
		return sup.complete(sess, "trade quota reached")
	}
	size := sess.Remaining() * sup.cfg.SizingFraction
	if size < sup.cfg.MinTradeSol {
		return sup.complete(sess, "remaining balance below minimum viable trade")
	}

	signals, err := sup.signals.LatestSignals(ctx)
	if err != nil {
		sup.logger.Warn("Signal fetch failed, backing off",
			zap.String("session_id", sess.ID),
			zap.Error(err))
		return sup.cfg.ErrorBackoff
	}

	sig, found := SelectSignal(signals, sup.supported)
	if !found {
		return sup.nextDelay(sess)
	}

	res, err := sup.executor.ExecuteEntry(ctx, sess.ID, sig.Token, size)
	if err != nil {
		metrics.EntriesTotal.WithLabelValues("failed").Inc()
		sup.logger.Warn("Entry failed, backing off",
			zap.String("session_id", sess.ID),
			zap.String("token", sig.Token),
			zap.Error(err))
		return sup.cfg.ErrorBackoff
	}
	if res.Skipped {
		metrics.EntriesTotal.WithLabelValues("skipped").Inc()
		return sup.nextDelay(sess)
	}

	if err := sess.commit(res.Position); err != nil {
		// Sizing is a fraction of remaining, so this indicates a bug;
		// the position is dropped rather than breaking the invariant.
		sup.logger.Error("Position exceeds remaining balance, dropped",
			zap.String("session_id", sess.ID),
			zap.Error(err))
		return sup.cfg.ErrorBackoff
	}
	sup.ledger.IncTrades(sess.Wallet)
	metrics.EntriesTotal.WithLabelValues("executed").Inc()
	metrics.OpenPositions.Inc()

	sup.logger.Info("Position opened",
		zap.String("session_id", sess.ID),
		zap.String("position_id", res.Position.ID),
		zap.String("token", res.Position.Token),
		zap.Float64("sol_spent", res.Position.SolSpent),
		zap.Float64("remaining", sess.Remaining()),
		zap.Int("trades", sess.Trades()))

	return sup.cfg.LongRecheckInterval
}

// nextDelay is short while no position is open and long while the monitor
// is managing exposure.
func (sup *Supervisor) nextDelay(sess *Session) time.Duration {
	if sess.hasOpenPosition() {
		return sup.cfg.LongRecheckInterval
	}
	return sup.cfg.ShortRecheckInterval
}

func (sup *Supervisor) complete(sess *Session, why string) time.Duration {
	if sess.transition(StateCompleted) {
		metrics.SessionTransitions.WithLabelValues(string(StateCompleted)).Inc()
		sup.releaseRemaining(sess)
		sup.logger.Info("Session completed",
			zap.String("session_id", sess.ID),
			zap.String("reason", why),
			zap.Int("trades", sess.Trades()))
	}
	return 0
}

func (sup *Supervisor) releaseRemaining(sess *Session) {
	if amount, first := sess.takeRelease(); first && amount > 0 {
		sup.ledger.Release(sess.Wallet, amount)
	}
}
