// internal/session/supervisor_test.go
package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/solpilot/solpilot/internal/config"
	"github.com/solpilot/solpilot/internal/ledger"
	"github.com/solpilot/solpilot/internal/market"
	"github.com/solpilot/solpilot/internal/trading"
)

type fakeSignals struct {
	mu      sync.Mutex
	signals []market.Signal
	err     error
}

func (f *fakeSignals) LatestSignals(ctx context.Context) ([]market.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signals, f.err
}

type fakeEntryExecutor struct {
	mu      sync.Mutex
	entries int
	skip    bool
	err     error
}

func (f *fakeEntryExecutor) ExecuteEntry(ctx context.Context, sessionID, token string, sizeSol float64) (*trading.EntryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.skip {
		return &trading.EntryResult{Skipped: true}, nil
	}
	f.entries++
	pos := trading.NewOpenPosition(&trading.Position{
		ID:        solana.NewWallet().PublicKey().String(),
		SessionID: sessionID,
		Token:     token,
		SolSpent:  sizeSol,
		CreatedAt: time.Now(),
		Deadline:  time.Now().Add(time.Minute),
	})
	return &trading.EntryResult{Position: pos, Signature: "entry-sig"}, nil
}

func (f *fakeEntryExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries
}

type fakeChain struct {
	submitErr  error
	submitGate chan struct{} // when set, Submit blocks until closed
}

func (f *fakeChain) BuildTransfer(ctx context.Context, from, to solana.PublicKey, amountSol float64) (*solana.Transaction, error) {
	inst := system.NewTransferInstruction(uint64(amountSol*1e9), from, to).Build()
	return solana.NewTransaction([]solana.Instruction{inst}, solana.Hash{}, solana.TransactionPayer(from))
}

func (f *fakeChain) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if f.submitGate != nil {
		<-f.submitGate
	}
	if f.submitErr != nil {
		return solana.Signature{}, f.submitErr
	}
	return solana.Signature{}, nil
}

type supervisorFixture struct {
	sup      *Supervisor
	store    *Store
	ledger   *ledger.Ledger
	executor *fakeEntryExecutor
	signals  *fakeSignals
	chain    *fakeChain
	wallet   string
	cancel   context.CancelFunc
}

func newFixture(t *testing.T, mutate func(*config.TradeConfig)) *supervisorFixture {
	t.Helper()

	cfg := config.TradeConfig{
		Quota:                5,
		SizingFraction:       0.9,
		MinTradeSol:          0.2,
		TakeProfitPct:        3.0,
		StopLossPct:          5.0,
		MaxHold:              time.Minute,
		ShortRecheckInterval: 5 * time.Millisecond,
		LongRecheckInterval:  5 * time.Millisecond,
		ErrorBackoff:         5 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &supervisorFixture{
		store:    NewStore(),
		ledger:   ledger.New(zaptest.NewLogger(t)),
		executor: &fakeEntryExecutor{},
		signals: &fakeSignals{signals: []market.Signal{
			{Token: "BONK", Direction: market.DirectionBuy, Confidence: 0.8, Urgency: 0.8},
		}},
		chain:  &fakeChain{},
		wallet: solana.NewWallet().PublicKey().String(),
		cancel: cancel,
	}
	f.sup = NewSupervisor(
		ctx,
		cfg,
		solana.NewWallet().PublicKey(),
		map[string]bool{"BONK": true, "WIF": true},
		f.store,
		f.ledger,
		f.executor,
		f.signals,
		f.chain,
		zaptest.NewLogger(t),
	)
	return f
}

// launchAndFund walks a session through Launch and ConfirmDeposit.
func (f *supervisorFixture) launchAndFund(t *testing.T, amount float64) string {
	t.Helper()

	res := f.sup.Launch(context.Background(), f.wallet, amount)
	require.True(t, res.Success, res.Message)
	require.NotEmpty(t, res.FundingTx)

	dep := f.sup.ConfirmDeposit(context.Background(), res.SessionID, res.FundingTx, f.wallet, amount)
	require.True(t, dep.Success, dep.Message)
	return res.SessionID
}

func TestLaunchValidation(t *testing.T) {
	f := newFixture(t, nil)

	res := f.sup.Launch(context.Background(), f.wallet, 0)
	assert.False(t, res.Success)

	res = f.sup.Launch(context.Background(), "not-a-wallet", 1.0)
	assert.False(t, res.Success)
}

func TestLaunchCreatesPendingSession(t *testing.T) {
	f := newFixture(t, nil)

	res := f.sup.Launch(context.Background(), f.wallet, 1.0)
	require.True(t, res.Success, res.Message)

	status := f.sup.Status(res.SessionID)
	require.True(t, status.Success)
	assert.Equal(t, StatePendingDeposit, status.Session.State)
	assert.Equal(t, 1.0, status.Session.Allocated)
}

func TestConfirmDepositRejectsSecondCall(t *testing.T) {
	f := newFixture(t, nil)
	id := f.launchAndFund(t, 1.0)

	res := f.sup.ConfirmDeposit(context.Background(), id, "whatever", f.wallet, 1.0)
	assert.False(t, res.Success)
}

func TestConfirmDepositConcurrentOnlyOneSettles(t *testing.T) {
	f := newFixture(t, func(cfg *config.TradeConfig) {
		cfg.ShortRecheckInterval = time.Hour
	})
	f.signals.signals = nil
	f.chain.submitGate = make(chan struct{})

	launch := f.sup.Launch(context.Background(), f.wallet, 1.0)
	require.True(t, launch.Success, launch.Message)

	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() {
			res := f.sup.ConfirmDeposit(context.Background(), launch.SessionID, launch.FundingTx, f.wallet, 1.0)
			results <- res.Success
		}()
	}
	// Let both calls reach the claim; the loser fails fast, the winner
	// blocks in Submit until the gate opens.
	time.Sleep(50 * time.Millisecond)
	close(f.chain.submitGate)

	first, second := <-results, <-results
	assert.NotEqual(t, first, second, "exactly one confirmation must win")

	// The deposit was settled and reserved once.
	entry, ok := f.ledger.Get(f.wallet)
	require.True(t, ok)
	assert.Equal(t, 1.0, entry.Deposited)
	assert.Equal(t, 0.0, entry.Available)
}

func TestConfirmDepositAmountMustMatchAllocation(t *testing.T) {
	f := newFixture(t, nil)

	launch := f.sup.Launch(context.Background(), f.wallet, 1.0)
	require.True(t, launch.Success)

	res := f.sup.ConfirmDeposit(context.Background(), launch.SessionID, launch.FundingTx, f.wallet, 0.5)
	assert.False(t, res.Success)

	// The mismatch leaves the session awaiting a correct deposit.
	status := f.sup.Status(launch.SessionID)
	require.Equal(t, StatePendingDeposit, status.Session.State)

	res = f.sup.ConfirmDeposit(context.Background(), launch.SessionID, launch.FundingTx, f.wallet, 1.0)
	assert.True(t, res.Success, res.Message)
}

func TestConfirmDepositSubmitFailureIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	f.chain.submitErr = errors.New("blockhash expired")

	launch := f.sup.Launch(context.Background(), f.wallet, 1.0)
	require.True(t, launch.Success)

	res := f.sup.ConfirmDeposit(context.Background(), launch.SessionID, launch.FundingTx, f.wallet, 1.0)
	assert.False(t, res.Success)

	status := f.sup.Status(launch.SessionID)
	assert.Equal(t, StateFailed, status.Session.State)

	// Nothing was credited.
	_, ok := f.ledger.Get(f.wallet)
	assert.False(t, ok)
}

func TestSessionCompletesWhenBalanceTooSmall(t *testing.T) {
	// 1.0 allocated at fraction 0.9: the first trade spends 0.9, the next
	// sizing attempt is 0.09 which is below the 0.2 minimum, so the
	// session completes after one trade and returns 0.1 to the ledger.
	f := newFixture(t, nil)
	id := f.launchAndFund(t, 1.0)

	require.Eventually(t, func() bool {
		return f.sup.Status(id).Session.State == StateCompleted
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.executor.count())

	status := f.sup.Status(id)
	assert.InDelta(t, 0.1, status.Session.Remaining, 1e-9)

	entry, ok := f.ledger.Get(f.wallet)
	require.True(t, ok)
	assert.InDelta(t, 0.1, entry.Available, 1e-9)
	assert.LessOrEqual(t, entry.Available, entry.Deposited)
}

func TestSessionCompletesAtQuota(t *testing.T) {
	f := newFixture(t, func(cfg *config.TradeConfig) {
		cfg.Quota = 3
		cfg.SizingFraction = 0.1
		cfg.MinTradeSol = 0.01
	})
	id := f.launchAndFund(t, 1.0)

	require.Eventually(t, func() bool {
		return f.sup.Status(id).Session.State == StateCompleted
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 3, f.executor.count())
	assert.Equal(t, 3, f.sup.Status(id).Session.Trades)
}

func TestStopReleasesRemainingOnce(t *testing.T) {
	f := newFixture(t, func(cfg *config.TradeConfig) {
		// No actionable signals, so the session idles in RUNNING.
		cfg.ShortRecheckInterval = time.Hour
	})
	f.signals.signals = nil
	id := f.launchAndFund(t, 1.0)

	res := f.sup.Stop(id)
	require.True(t, res.Success)
	assert.Equal(t, StateStopped, f.sup.Status(id).Session.State)

	entry, _ := f.ledger.Get(f.wallet)
	assert.InDelta(t, 1.0, entry.Available, 1e-9)

	// Stopping again is a harmless no-op with no double release.
	res = f.sup.Stop(id)
	assert.True(t, res.Success)
	entry, _ = f.ledger.Get(f.wallet)
	assert.InDelta(t, 1.0, entry.Available, 1e-9)
}

func TestStopUnfundedSessionReleasesNothing(t *testing.T) {
	f := newFixture(t, func(cfg *config.TradeConfig) {
		cfg.ShortRecheckInterval = time.Hour
	})
	f.signals.signals = nil

	// Session A is funded and idles in RUNNING with the full deposit
	// reserved.
	f.launchAndFund(t, 1.0)
	entry, _ := f.ledger.Get(f.wallet)
	require.Equal(t, 0.0, entry.Available)

	// Session B for the same wallet is launched but never funded.
	launchB := f.sup.Launch(context.Background(), f.wallet, 5.0)
	require.True(t, launchB.Success)

	res := f.sup.Stop(launchB.SessionID)
	require.True(t, res.Success)
	assert.Equal(t, StateStopped, f.sup.Status(launchB.SessionID).Session.State)

	// B deposited nothing, so stopping it must not expose A's reserved
	// funds.
	entry, _ = f.ledger.Get(f.wallet)
	assert.Equal(t, 0.0, entry.Available)
	assert.Equal(t, 1.0, entry.Deposited)
}

func TestStopFailedSessionIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.chain.submitErr = errors.New("blockhash expired")

	launch := f.sup.Launch(context.Background(), f.wallet, 1.0)
	f.sup.ConfirmDeposit(context.Background(), launch.SessionID, launch.FundingTx, f.wallet, 1.0)

	res := f.sup.Stop(launch.SessionID)
	assert.False(t, res.Success)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t, nil)

	assert.False(t, f.sup.Status("missing").Success)
	assert.False(t, f.sup.Stop("missing").Success)
	dep := f.sup.ConfirmDeposit(context.Background(), "missing", "tx", f.wallet, 1.0)
	assert.False(t, dep.Success)
}

func TestEntrySkipDoesNotConsumeQuota(t *testing.T) {
	f := newFixture(t, nil)
	f.executor.skip = true
	id := f.launchAndFund(t, 1.0)

	time.Sleep(50 * time.Millisecond)
	status := f.sup.Status(id)
	assert.Equal(t, StateRunning, status.Session.State)
	assert.Equal(t, 0, status.Session.Trades)
	assert.Equal(t, 1.0, status.Session.Remaining)
}
