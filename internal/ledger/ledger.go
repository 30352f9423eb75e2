// internal/ledger/ledger.go
// Package ledger tracks deposited vs available funds per wallet. It gates
// how much a session may commit to trading and receives unused funds back
// when a session stops or completes.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry is the per-wallet bookkeeping record.
type Entry struct {
	Wallet    string
	Deposited float64 // total SOL ever deposited
	Available float64 // unreserved SOL, always <= Deposited
	Trades    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ledger is an in-memory fund ledger keyed by wallet address.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Ledger {
	return &Ledger{
		entries: make(map[string]*Entry),
		logger:  logger.Named("ledger"),
	}
}

// Deposit records a settled deposit, increasing both the deposited total
// and the available balance.
func (l *Ledger) Deposit(wallet string, amount float64) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[wallet]
	if !ok {
		entry = &Entry{Wallet: wallet, CreatedAt: time.Now()}
		l.entries[wallet] = entry
	}
	entry.Deposited += amount
	entry.Available += amount
	entry.UpdatedAt = time.Now()

	l.logger.Info("Deposit recorded",
		zap.String("wallet", wallet),
		zap.Float64("amount", amount),
		zap.Float64("available", entry.Available))
}

// Reserve removes amount from the available balance. It fails if the wallet
// has no entry or not enough available funds.
func (l *Ledger) Reserve(wallet string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("reserve amount must be positive, got %f", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[wallet]
	if !ok {
		return fmt.Errorf("no ledger entry for wallet %s", wallet)
	}
	if entry.Available < amount {
		return fmt.Errorf("insufficient available funds: have %f, want %f", entry.Available, amount)
	}
	entry.Available -= amount
	entry.UpdatedAt = time.Now()

	l.logger.Info("Funds reserved",
		zap.String("wallet", wallet),
		zap.Float64("amount", amount),
		zap.Float64("available", entry.Available))
	return nil
}

// Release returns unused funds to the available balance, capped at the
// deposited total. A wallet with no entry is a no-op.
func (l *Ledger) Release(wallet string, amount float64) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[wallet]
	if !ok {
		return
	}
	entry.Available += amount
	if entry.Available > entry.Deposited {
		entry.Available = entry.Deposited
	}
	entry.UpdatedAt = time.Now()

	l.logger.Info("Funds released",
		zap.String("wallet", wallet),
		zap.Float64("amount", amount),
		zap.Float64("available", entry.Available))
}

// IncTrades bumps the wallet's trade counter. Unknown wallets are a no-op.
func (l *Ledger) IncTrades(wallet string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.entries[wallet]; ok {
		entry.Trades++
		entry.UpdatedAt = time.Now()
	}
}

// Get returns a copy of the wallet's entry.
func (l *Ledger) Get(wallet string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[wallet]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}
